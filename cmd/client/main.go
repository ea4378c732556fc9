package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"github.com/driftnotes/driftsync/internal/client"
	"github.com/driftnotes/driftsync/internal/client/config"
)

func main() {

	_ = godotenv.Load()

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := client.NewApp(ctx, cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)

}
