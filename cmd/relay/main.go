// Relay — the pub/sub broadcast server for devcanvas rooms.
//
// Clients connect over WebSocket at /ws, subscribe to topics, and publish
// envelopes that fan out to the topic's other subscribers. Nothing is
// persisted; delivery is best-effort, at-most-once.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/devcanvas/devcanvas/internal/relay"
	"github.com/devcanvas/devcanvas/internal/util"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	addr := flag.String("addr", ":8787", "Listen address (\":0\" picks a random port)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debugMode {
		util.EnableDebug()
	}

	srv := relay.NewServer()
	port, err := srv.Start(*addr)
	if err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	defer srv.Close()

	util.LogInfo("relay v%s listening on port %d (endpoint /ws)", version, port)

	<-ctx.Done()
	util.LogInfo("relay shutting down")
}
