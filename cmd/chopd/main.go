// Command chopd is a local development reverse proxy for Chopin-framework
// apps: it serializes mutating HTTP traffic to a single target, simulates
// wallet-address identity on every request, and lets the target attach
// asynchronous context to a request chopd is still holding open.
//
// Usage:
//
//	chopd [proxyPort] [targetPort]
//	chopd init
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/chopinframework/chopd/internal/applog"
	"github.com/chopinframework/chopd/internal/chopin"
	"github.com/chopinframework/chopd/internal/config"
	"github.com/chopinframework/chopd/internal/spawn"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const configFileName = "chopin.config.json"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded (%v); using process environment", err)
	}

	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "init":
			runInit()
			return
		case "-h", "--help":
			printUsage()
			return
		}
	}

	cfg, err := config.Load(configFileName)
	if err != nil {
		log.Fatalf("chopd: %v", err)
	}
	if len(args) >= 1 {
		if p, perr := strconv.Atoi(args[0]); perr == nil {
			cfg.ProxyPort = p
		} else {
			log.Fatalf("chopd: invalid proxy port %q", args[0])
		}
	}
	if len(args) >= 2 {
		if p, perr := strconv.Atoi(args[1]); perr == nil {
			cfg.TargetPort = p
		} else {
			log.Fatalf("chopd: invalid target port %q", args[1])
		}
	}
	if len(args) > 2 {
		log.Fatalf("chopd: unrecognized arguments: %v", args[2:])
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("chopd: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var target *spawn.Target
	if cfg.Command != "" {
		t, err := spawn.Start(ctx, cfg.Command, cfg.Env)
		if err != nil {
			log.Fatalf("chopd: %v", err)
		}
		target = t
	}

	targetURL := &url.URL{Scheme: "http", Host: fmt.Sprintf("localhost:%d", cfg.TargetPort)}
	proxy := chopin.New(targetURL, chopin.Config{ProxyPort: cfg.ProxyPort})

	addr := fmt.Sprintf(":%d", cfg.ProxyPort)
	server := &http.Server{Addr: addr, Handler: proxy}

	metricsAddr := fmt.Sprintf("127.0.0.1:%d", cfg.ProxyPort+1)
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: metricsAddr, Handler: metricsMux}

	go func() {
		log.Printf("chopd metrics listening on %s", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			applog.Emit("error", "chopd", nil, "metrics server: "+err.Error())
		}
	}()

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
		_ = metricsServer.Shutdown(shutdownCtx)
		if target != nil {
			if err := target.Stop(5 * time.Second); err != nil {
				log.Printf("chopd: target exited: %v", err)
			}
		}
	}()

	log.Printf("chopd listening on %s, forwarding to %s", addr, targetURL.String())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("chopd: %v", err)
	}
	// ListenAndServe returns as soon as Shutdown starts; wait for the
	// shutdown goroutine so the spawned target is stopped before exiting.
	<-shutdownDone
}

func runInit() {
	if _, err := os.Stat(configFileName); err == nil {
		log.Fatalf("chopd: %s already exists", configFileName)
	}
	sample := fmt.Sprintf(`{
  "command": "",
  "proxyPort": %d,
  "targetPort": %d,
  "env": {}
}
`, config.DefaultProxyPort, config.DefaultTargetPort)
	if err := os.WriteFile(configFileName, []byte(sample), 0o644); err != nil {
		log.Fatalf("chopd: writing %s: %v", configFileName, err)
	}
	fmt.Printf("wrote %s\n", configFileName)
}

func printUsage() {
	fmt.Println("Usage: chopd [proxyPort] [targetPort]")
	fmt.Println("       chopd init")
}
