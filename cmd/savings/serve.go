package main

import (
	"fmt"
	"log/slog"
	"net"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/savings-tracker/internal/certs"
	"github.com/Veraticus/savings-tracker/internal/cli"
	"github.com/Veraticus/savings-tracker/internal/config"
	"github.com/Veraticus/savings-tracker/internal/query"
)

const (
	defaultServerAddr = "localhost:8080"
	defaultCertDir    = "~/.local/share/savings/certs"
)

// serverHosts returns the names the certificate must cover for addr.
func serverHosts(addr string) []string {
	hosts := append([]string(nil), certs.DefaultHosts...)
	host, _, err := net.SplitHostPort(addr)
	if err != nil || host == "" || slices.Contains(hosts, host) {
		return hosts
	}
	return append(hosts, host)
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve account data to Grafana",
		Long: `Run the JSON datasource consumed by Grafana's simple JSON plugin.

Endpoints: / and /test (health), /search (target names), /query (accounts
table and balances, APRs and returns series) and /annotations.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().String("addr", defaultServerAddr, "Listen address")
	cmd.Flags().Bool("tls", false, "Serve HTTPS with a self-signed certificate")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.tls", cmd.Flags().Lookup("tls"))
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := initApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	addr := viper.GetString("server.addr")
	if addr == "" {
		addr = defaultServerAddr
	}

	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx := interrupts.HandleInterrupts(cmd.Context(), "Server")

	handler := query.NewServer(query.NewService(a.engine)).Router()
	slog.Info("Starting query server", "addr", addr)

	if !viper.GetBool("server.tls") {
		return query.Serve(ctx, addr, handler)
	}

	certDir := viper.GetString("server.cert_dir")
	if certDir == "" {
		certDir = defaultCertDir
	}
	tlsConfig, err := certs.NewStore(config.ExpandPath(certDir), serverHosts(addr)...).TLSConfig()
	if err != nil {
		return fmt.Errorf("failed to prepare certificate: %w", err)
	}
	return query.ServeTLS(ctx, addr, handler, tlsConfig)
}
