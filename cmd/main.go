package main

import (
	"context"
	"log"

	"quant-engine/internal/app"
)

func main() {
	application, err := app.New(nil)
	if err != nil {
		log.Fatalf("failed to create application: %v", err)
	}

	ctx := context.Background()
	if err := application.Init(ctx); err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(ctx); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
