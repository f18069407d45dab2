package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"bancored/config"
	"bancored/observability/logging"
	"bancored/server"
	"bancored/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("BANCO_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.Setup("bancored", env, logging.Options{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
	})

	key, err := cfg.SharedKey()
	if err != nil {
		log.Fatalf("resolve shared key: %v", err)
	}

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	srv, err := server.New(cfg.ListenAddr(), key, store, logger)
	if err != nil {
		log.Fatalf("build server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("clave compartida cargada")
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
}
