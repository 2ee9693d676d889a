// Command admin mints access tokens for local development and operations.
//
//	go run ./cmd/admin token -sub mod-1 -name "Ada" -role moderator -ttl 24h
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"confessions/internal/config"
	"confessions/internal/identity"
	"confessions/internal/middleware"
)

func main() {
	if len(os.Args) < 2 || os.Args[1] != "token" {
		fmt.Println("Usage:")
		fmt.Println("  go run ./cmd/admin token -sub <user_id> [-name <display name>] [-role member|moderator] [-ttl 1h]")
		os.Exit(1)
	}

	fs := flag.NewFlagSet("token", flag.ExitOnError)
	sub := fs.String("sub", "", "User id (token subject)")
	name := fs.String("name", "", "Display name recorded on moderation events")
	role := fs.String("role", identity.RoleMember, "member or moderator")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	_ = fs.Parse(os.Args[2:])

	if *sub == "" {
		log.Fatal("-sub is required")
	}
	if *role != identity.RoleMember && *role != identity.RoleModerator {
		log.Fatalf("unknown role %q", *role)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	tok, err := middleware.IssueToken(identity.User{ID: *sub, DisplayName: *name, Role: *role}, cfg.JWTSecret, *ttl)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(tok)
}
