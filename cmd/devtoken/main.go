// Command devtoken prints a bearer token for local testing, signed with the
// same JWT_* settings the server reads.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"docproof/internal/platform/config"
	"docproof/internal/platform/identity"
	"docproof/pkg/domain"
)

func main() {
	subject := flag.String("sub", "", "caller identity to embed as the token subject")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	actor, err := domain.ParseIdentity(*subject)
	if err != nil {
		fmt.Fprintln(os.Stderr, "usage: devtoken -sub <identity> [-ttl 1h]")
		os.Exit(2)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	tokens := identity.NewTokenService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience)
	token, err := tokens.IssueToken(actor, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}
