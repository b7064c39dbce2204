package main

import (
	"context"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/orbaslabs/peerdrive/client"
	"github.com/orbaslabs/peerdrive/internal/config"
	"github.com/orbaslabs/peerdrive/internal/debugsrv"
	"github.com/orbaslabs/peerdrive/internal/logging"
)

// connect resolves connection parameters from flags layered over
// client.Discover and internal/config, dials the daemon, and — if
// --debug-addr was given — starts the read-only debug HTTP server in the
// background. The returned closer tears both down.
func connect(cmd *cobra.Command) (*client.Client, func(), error) {
	addr, _ := cmd.Flags().GetString("addr")
	cfgPath, _ := cmd.Flags().GetString("config")
	debugAddr, _ := cmd.Flags().GetString("debug-addr")
	logLevel, _ := cmd.Flags().GetString("log-level")
	log := logging.New("peerdrivectl", logLevel)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}

	ep := client.Endpoint{Addr: addr}
	if addr == "" {
		ep, err = client.Discover()
		if err != nil {
			return nil, nil, err
		}
	}

	cl, err := client.Dial(cmd.Context(), ep, client.WithConfig(cfg), client.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}

	var srv *http.Server
	if debugAddr != "" {
		srv = &http.Server{Addr: debugAddr, Handler: debugsrv.New(cl)}
		go func() { _ = srv.ListenAndServe() }()
	}

	closer := func() {
		if srv != nil {
			_ = srv.Shutdown(context.Background())
		}
		cl.Close()
	}
	return cl, closer, nil
}
