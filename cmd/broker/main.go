// Command broker runs a standalone MQTT broker, wiring a config file (if
// given) to a set of listeners and a running broker.Server.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/nymea-go/mqttgo/broker"
	"github.com/nymea-go/mqttgo/config"
	"github.com/nymea-go/mqttgo/listeners"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or JSON broker config file")
	addr := flag.String("addr", ":1883", "TCP address to listen on when no config file is given")
	flag.Parse()

	log := slog.Default()

	cfg := &config.Config{}
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			log.Error("failed to load config", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	opts := cfg.BrokerOptions()
	opts.Log = log
	s := broker.New(opts)

	ls, err := cfg.BuildListeners()
	if err != nil {
		log.Error("failed to build listeners", "error", err)
		os.Exit(1)
	}
	if len(ls) == 0 {
		ls = []listeners.Listener{listeners.NewTCP("default", *addr)}
	}
	for _, l := range ls {
		if err := s.AddListener(l); err != nil {
			log.Error("failed to add listener", "id", l.ID(), "error", err)
			os.Exit(1)
		}
	}

	banner(ls)

	if err := s.Serve(); err != nil {
		log.Error("failed to start serving", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()

	log.Info("shutting down")
	if err := s.Close(); err != nil {
		log.Error("error during shutdown", "error", err)
	}
}

func banner(ls []listeners.Listener) {
	color.New(color.FgCyan, color.Bold).Println("mqttgo broker")
	for _, l := range ls {
		color.Green("  listening on %s (%s)", l.Address(), l.Protocol())
	}
}
