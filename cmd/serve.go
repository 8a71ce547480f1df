// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"net"
	"os"
	"time"

	"bichat/cli/internal/bridge"
	"bichat/cli/internal/logging"

	"github.com/spf13/cobra"
)

var (
	serveListen      string
	serveSessionIdle time.Duration
	serveMaxRows     int
)

// serveCmd exposes the orchestrator as the bichat.Chat gRPC service.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat bridge over gRPC",
	Long: `The serve command runs the bichat.Chat gRPC service so a dashboard can hold chat
sessions. Each session id keeps its own Genie conversation in memory until it has been
idle for --session-idle.

Set BICHAT_BRIDGE_TOKEN to require "authorization: Bearer <token>" on every call.
Connections are plaintext gRPC; put the server behind a TLS proxy, or use
'bichat ask --remote --insecure' against a local server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.NewServer(os.Stderr, logging.ParseLevel(cfg.LogLevel))

		addr := serveListen
		if addr == "" {
			addr = cfg.Bridge.Listen
		}
		if cfg.Bridge.Token == "" {
			if host, _, err := net.SplitHostPort(addr); err == nil {
				if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
					log.Warn("serving without a bearer token on a non-loopback address", "addr", addr)
				}
			}
		}

		o, err := newOrchestrator(cfg, log, nil)
		if err != nil {
			return err
		}
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}

		srv := bridge.NewServer(o, bridge.ServerOptions{
			Token:       cfg.Bridge.Token,
			SessionIdle: serveSessionIdle,
			MaxRows:     serveMaxRows,
			Logger:      log,
		})
		err = srv.Serve(cmd.Context(), lis)
		log.Info("chat bridge stopped")
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (default bridge.listen)")
	serveCmd.Flags().DurationVar(&serveSessionIdle, "session-idle", bridge.DefaultSessionIdle, "Evict sessions idle for this long")
	serveCmd.Flags().IntVar(&serveMaxRows, "max-rows", 1000, "Maximum rows per reply")
}
