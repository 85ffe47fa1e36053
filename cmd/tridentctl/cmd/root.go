package cmd

import (
	"context"
	"net"
	"net/http"

	"github.com/spf13/cobra"

	"trident/internal/config"
	"trident/internal/tridentlog"
)

var (
	socketPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "tridentctl",
	Short:         "Client for the Trident host-provisioning daemon",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		tridentlog.Setup(logLevel, false)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", config.DefaultSocketPath, "Path to the Trident control socket")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Client log level")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// client returns an HTTP client that dials the daemon's Unix socket
// regardless of the request URL's host part.
func client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
	}
}

// daemonURL builds a request URL for a named RPC; the host is a
// placeholder since the transport always dials the socket.
func daemonURL(rpc string) string {
	return "http://trident/" + rpc
}
