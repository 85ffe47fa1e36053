// tridentd is the Trident daemon: it owns the control socket and serves
// the servicing control plane until terminated.
package main

import (
	"io/fs"
	"net"
	"net/http"

	"github.com/alecthomas/kong"
	log "github.com/sirupsen/logrus"

	"trident/internal/config"
	"trident/internal/servicing"
	"trident/internal/tridentlog"
)

type CLI struct {
	Config     string `help:"Path to the daemon configuration file." type:"existingfile"`
	Socket     string `help:"Override the control socket path."`
	LogLevel   string `help:"Override the configured log level."`
	ForceColor bool   `help:"Force color output." short:"c"`
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli)
	ctx.FatalIfErrorf(run(&cli))
}

func run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if cli.Socket != "" {
		cfg.SocketPath = cli.Socket
	}
	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}
	tridentlog.Setup(cfg.LogLevel, cli.ForceColor)

	forwarder := servicing.NewLogForwarder()
	log.AddHook(&servicing.Hook{Forwarder: forwarder, Target: "trident"})

	server := servicing.NewServer(servicing.NewCoordinator(), forwarder, servicing.NewState(), servicing.NopBackend{})

	listener, err := controlListener(cfg)
	if err != nil {
		return err
	}
	log.WithField("socket", listener.Addr().String()).Info("Serving Trident control plane")
	return http.Serve(listener, server)
}

// controlListener prefers a systemd-inherited socket; absent socket
// activation it creates the configured one itself.
func controlListener(cfg *config.Config) (net.Listener, error) {
	sockets, err := servicing.SocketsFromEnvironment()
	if err != nil {
		return nil, err
	}
	if len(sockets) > 0 {
		log.WithFields(log.Fields{
			"name":  sockets[0].Name,
			"count": len(sockets),
		}).Info("Using socket-activated listener")
		return sockets[0].Listener, nil
	}
	return servicing.NewSocketListener(cfg.SocketPath, fs.FileMode(cfg.SocketMode))
}
