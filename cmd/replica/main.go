// Command replica runs a single clinicmesh replica: it serves the clinic
// domain's HTTP API directly, funnels writes to the elected coordinator,
// and replicates full-state snapshots to its peers.
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

	"clinicmesh/internal/api"
	"clinicmesh/internal/coordination"
	"clinicmesh/internal/node"
	"clinicmesh/internal/replicate"

	"github.com/gin-gonic/gin"
)

func main() {
	id := flag.Int("id", 0, "this replica's id (conventionally its listening port)")
	port := flag.String("port", "", "port to listen on (defaults to -id)")
	peersFlag := flag.String("peers", "", "comma-separated id=host:port pairs for every replica, including self")
	dataDir := flag.String("data-dir", "./data", "directory for the per-replica audit log")
	flag.Parse()

	if *id == 0 || *peersFlag == "" {
		log.Fatal("usage: replica -id=<id> -peers=<id=host:port,...> [-port=<port>] [-data-dir=<dir>]")
	}
	listenPort := *port
	if listenPort == "" {
		listenPort = strconv.Itoa(*id)
	}

	peers, err := parsePeers(*peersFlag)
	if err != nil {
		log.Fatalf("invalid -peers: %v", err)
	}

	self := node.ID(*id)
	fmt.Printf("🚀 starting clinicmesh replica %d on :%s\n", *id, listenPort)
	fmt.Printf("👥 peers: %v\n", peers)

	audit, err := replicate.OpenAuditLog(*dataDir, *id)
	if err != nil {
		fmt.Printf("⚠️  audit log disabled: %v\n", err)
	}
	defer audit.Close()

	hub := replicate.NewHub()
	r := coordination.New(self, peers)
	r.Events = hub
	engine := replicate.NewEngine(r, audit)
	handler := api.NewHandler(r, engine, hub)

	fmt.Printf("🗳️  initial coordinator belief: %d\n", r.CoordinatorID())

	router := gin.Default()
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})
	api.RegisterRoutes(router, handler)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := router.Run(":" + listenPort); err != nil {
			log.Fatal("replica server failed:", err)
		}
	}()

	<-sigChan
	fmt.Printf("\n🛑 replica %d shutting down\n", *id)
}

// parsePeers parses "1=localhost:9001,2=localhost:9002,..." into a
// node.Set.
func parsePeers(spec string) (node.Set, error) {
	set := make(node.Set)
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed peer entry %q", pair)
		}
		id, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("malformed peer id in %q: %w", pair, err)
		}
		set[node.ID(id)] = node.Info{ID: node.ID(id), Address: parts[1]}
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no peers parsed from %q", spec)
	}
	return set, nil
}
