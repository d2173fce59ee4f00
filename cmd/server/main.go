package main

import (
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/LucasKiller/DocLens/internal/config"
	httpserver "github.com/LucasKiller/DocLens/internal/http"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	srv, err := httpserver.NewServer(cfg)
	if err != nil {
		logrus.Fatalf("failed to create server: %v", err)
	}

	if err := srv.Run(); err != nil {
		logrus.Fatalf("server stopped with error: %v", err)
	}
}
