// Command gateway runs the round-robin reverse proxy that fronts a
// clinicmesh cluster: clients only ever talk to the gateway, never to a
// replica directly.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"clinicmesh/internal/gateway"
)

func main() {
	port := flag.String("port", "8000", "port for the gateway to listen on")
	backendsFlag := flag.String("backends", "", "comma-separated id=host:port pairs for every replica")
	flag.Parse()

	if *backendsFlag == "" {
		log.Fatal("usage: gateway -backends=<id=host:port,...> [-port=<port>]")
	}
	backends, err := parseBackends(*backendsFlag)
	if err != nil {
		log.Fatalf("invalid -backends: %v", err)
	}

	fmt.Printf("🚪 clinicmesh gateway starting on :%s\n", *port)
	fmt.Printf("🔁 round-robin backends: %v\n", backends)

	router := gateway.NewRouter(backends)
	server := &http.Server{Addr: ":" + *port, Handler: router.Handler()}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("gateway server failed:", err)
		}
	}()

	<-sigChan
	fmt.Printf("\n🛑 gateway shutting down\n")
}

func parseBackends(spec string) ([]gateway.Backend, error) {
	var backends []gateway.Backend
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed backend entry %q", pair)
		}
		id, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("malformed backend id in %q: %w", pair, err)
		}
		backends = append(backends, gateway.Backend{ID: id, Address: parts[1]})
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("no backends parsed from %q", spec)
	}
	return backends, nil
}
