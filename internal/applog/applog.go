// Package applog is chopd's structured logging layer: a local line logger
// gated by level toggles, plus a best-effort push of the same line to
// Loki with a "level" label, covering the control/queue/passthrough/
// fixture event vocabulary.
package applog

import (
	"bytes"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	lokiURL    string
	lokiOnce   sync.Once
	lokiClient = &http.Client{Timeout: 200 * time.Millisecond}

	infoEnabled  = true
	debugEnabled = false
	errorEnabled = true
)

// fileConfig is the shape of the optional chopin.log.yaml level/Loki
// config file, read once on first Emit call.
type fileConfig struct {
	Metrics *struct {
		LokiURL string `yaml:"loki_url"`
	} `yaml:"metrics"`
	Logging *struct {
		InfoEnabled  *bool `yaml:"info_enabled"`
		DebugEnabled *bool `yaml:"debug_enabled"`
		ErrorEnabled *bool `yaml:"error_enabled"`
	} `yaml:"logging"`
}

func initLoki() {
	lokiURL = ""
	cfgFile := ""
	for _, c := range []string{"chopin.log.yaml", "chopin.log.yml"} {
		if _, err := os.Stat(c); err == nil {
			cfgFile = c
			break
		}
	}
	if cfgFile != "" {
		var cfg fileConfig
		if b, err := os.ReadFile(cfgFile); err == nil {
			if err := yaml.Unmarshal(b, &cfg); err == nil {
				if cfg.Metrics != nil && strings.TrimSpace(cfg.Metrics.LokiURL) != "" {
					lokiURL = strings.TrimSpace(cfg.Metrics.LokiURL)
				}
				if cfg.Logging != nil {
					if cfg.Logging.InfoEnabled != nil {
						infoEnabled = *cfg.Logging.InfoEnabled
					}
					if cfg.Logging.DebugEnabled != nil {
						debugEnabled = *cfg.Logging.DebugEnabled
					}
					if cfg.Logging.ErrorEnabled != nil {
						errorEnabled = *cfg.Logging.ErrorEnabled
					}
				}
			}
		}
	}
	if lokiURL != "" && !strings.Contains(lokiURL, "/loki/api/v1/push") {
		lokiURL = strings.TrimRight(lokiURL, "/") + "/loki/api/v1/push"
	}
}

func levelEnabled(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return debugEnabled
	case "error":
		return errorEnabled
	default:
		return infoEnabled
	}
}

// logEnabled suppresses local logging (the standard logger, stderr by
// default) inside go test binaries so
// `go test -v` output isn't drowned out.
func logEnabled() bool {
	return flag.Lookup("test.v") == nil && flag.Lookup("test.run") == nil && flag.Lookup("test.bench") == nil
}

// Emit prints line locally (if enabled for this level) and best-effort
// pushes it to Loki with the given app/labels.
func Emit(level, app string, labels map[string]string, line string) {
	lvl := strings.ToLower(level)
	if logEnabled() && levelEnabled(lvl) {
		log.Print(line)
	}
	pushLoki(lvl, app, labels, line)
}

func pushLoki(level, app string, labels map[string]string, line string) {
	lokiOnce.Do(initLoki)
	if lokiURL == "" || !levelEnabled(level) {
		return
	}

	lbls := map[string]string{"app": app, "level": level}
	for k, v := range labels {
		if strings.TrimSpace(k) == "" {
			continue
		}
		lbls[k] = v
	}

	ts := strconv.FormatInt(time.Now().UnixNano(), 10)
	payload := struct {
		Streams []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		} `json:"streams"`
	}{
		Streams: []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		}{
			{Stream: lbls, Values: [][2]string{{ts, line}}},
		},
	}

	b, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, lokiURL, bytes.NewReader(b))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	_, _ = lokiClient.Do(req) // fire-and-forget
}

// MustHostname returns the current hostname or "unknown" on error.
func MustHostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}
