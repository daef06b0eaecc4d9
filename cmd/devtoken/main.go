package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gogotex/gogotex/backend/go-collab/internal/config"
	"github.com/gogotex/gogotex/backend/go-collab/internal/models"
	"github.com/gogotex/gogotex/backend/go-collab/internal/tokens"
)

// devtoken mints an HS256 access token signed with JWT_SECRET, for local
// testing of the websocket endpoint without an identity provider.
func main() {
	sub := flag.String("sub", "dev-user", "subject claim")
	email := flag.String("email", "", "email claim")
	name := flag.String("name", "", "display name claim")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.JWT.Secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(1)
	}
	tok, err := tokens.GenerateAccessToken(cfg, &models.User{Sub: *sub, Email: *email, Name: *name}, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
