package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"github.com/driftnotes/driftsync/internal/broker"
	"github.com/driftnotes/driftsync/internal/broker/config"
)

func main() {

	_ = godotenv.Load()

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := broker.NewApp(ctx, cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
