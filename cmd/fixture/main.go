// Command fixture runs a standalone target application for exercising
// chopd locally.
//
// Usage: fixture [addr]
// addr defaults to ":3000".
package main

import (
	"log"
	"net/http"
	"os"

	"github.com/chopinframework/chopd/internal/fixture"
)

func main() {
	addr := ":3000"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	listener, err := fixture.Bind(addr)
	if err != nil {
		log.Fatalf("fixture: %v", err)
	}

	srv := fixture.NewServer()
	log.Printf("fixture target listening on %s", listener.Addr().String())
	if err := http.Serve(listener, srv.Handler()); err != nil {
		log.Fatal(err)
	}
}
