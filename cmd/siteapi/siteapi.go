package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akamensky/argparse"
	"github.com/atlasvans/siteapi/server"
	"github.com/atlasvans/siteapi/server/config"
	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/logs"
	"github.com/joho/godotenv"
)

func main() {
	parser := argparse.NewParser("siteapi", "Atlas Vans rental site API")
	configFile := parser.String("c", "config", &argparse.Options{Help: "Configuration file", Default: ""})
	envFile := parser.String("", "env", &argparse.Options{Help: "Load environment variables from this file before reading configuration", Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Printf("Failed to load %v: %v\n", *envFile, err)
			os.Exit(1)
		}
	} else {
		// Best effort. A missing .env is the normal case in production.
		godotenv.Load()
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	srv, err := server.NewServer(logger, cfg)
	if err != nil {
		logger.Errorf("Failed to create server: %v", err)
		os.Exit(1)
	}

	if err := srv.Bootstrap(context.Background()); err != nil {
		logger.Errorf("Failed to bootstrap admin account: %v", err)
		os.Exit(1)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-stop
		logger.Infof("Received %v. Shutting down.", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	daemon.SdNotify(false, daemon.SdNotifyReady)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("Server exited: %v", err)
		os.Exit(1)
	}
	logger.Infof("Goodbye")
	logger.Close()
}
