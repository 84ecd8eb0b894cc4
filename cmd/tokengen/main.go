package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"chat-presence/auth"
	"chat-presence/domain"

	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type config struct {
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`
}

// tokengen mints a signed credential for a participant, for local testing
// and for issuing service tokens.
func main() {
	id := flag.String("id", "", "participant identifier")
	name := flag.String("name", "", "participant display name")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *id == "" {
		log.Fatal("missing -id")
	}

	_ = godotenv.Load()
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	verifier := auth.NewVerifier(cfg.JWTSecret)
	token, err := verifier.Mint(domain.Participant{ID: *id, Name: *name}, *ttl)
	if err != nil {
		log.Fatalf("Failed to mint token: %v", err)
	}

	color.Green.Printf("Token for %s (valid %s):\n", *id, *ttl)
	fmt.Println(token)
}
