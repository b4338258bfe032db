package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookdex/internal/config"
	"bookdex/internal/server"
)

// ServeCmd represents the serve command
type ServeCmd struct {
	Addr string `help:"Listen address, overrides server.addr from config"`
}

func (s *ServeCmd) Run(cfg *config.Config) error {
	p, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	addr := cfg.Server.Addr
	if s.Addr != "" {
		addr = s.Addr
	}

	srv := server.New(addr, p.service, p.gate)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		slog.Info("Shutting down", "signal", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
