// Command spineldb starts a single SpinelDB node: it loads
// configuration, wires the server, and serves RESP connections until
// signaled to shut down.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spineldb/spineldb/internal/config"
	"github.com/spineldb/spineldb/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "spineldb: configuration error: %v\n", err)
		return 1
	}

	srv, err := server.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "spineldb: startup error: %v\n", err)
		return 2
	}
	defer srv.Close()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "spineldb: listen on %s: %v\n", addr, err)
		return 1
	}

	srv.Log.Infof("spineldb listening on %s", addr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	select {
	case <-sig:
		srv.Log.Infof("shutting down")
		ln.Close()
		<-serveErr
		return 0
	case err := <-serveErr:
		fmt.Fprintf(os.Stderr, "spineldb: serve error: %v\n", err)
		return 1
	}
}
