package main

import (
	"log"

	"github.com/aussiebroadwan/passport/internal/identity/app"
	"github.com/joho/godotenv"
)

func main() {
	// A local .env is optional
	_ = godotenv.Load()

	cfg := app.LoadConfig()

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
