package main

import (
	"context"
	"log"
	"time"

	"intraday-advisor/api"
	"intraday-advisor/app"
	"intraday-advisor/config"
)

func main() {
	// Load config from .env file
	cfg := config.LoadFromEnv()

	application := app.New(cfg)

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err := application.Init(initCtx)
	cancel()
	if err != nil {
		log.Fatal(err)
	}

	server := api.NewServer(application.Advisor(), application.Broker(), application.Auth(), application.Metrics(), application.Logger())
	server.AddHealthCheck("database", application.Database().Ping)
	if redis := application.Redis(); redis != nil {
		server.AddHealthCheck("redis", redis.Ping)
	}

	if err := application.Run(server); err != nil {
		log.Fatal(err)
	}
}
