package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"classlink/internal/app"
	"classlink/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "classlink: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	application, err := app.NewApplication(cfg)
	if err != nil {
		return err
	}

	if err := application.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		application.Logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serverExit(application):
		if err != nil {
			_ = application.Stop()
			return err
		}
	}

	return application.Stop()
}

func serverExit(application *app.Application) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- application.Wait()
	}()
	return done
}
