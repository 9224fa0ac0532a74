// Command devtoken prints a bearer token for calling a local API.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"grocery-orders/config"
	"grocery-orders/internal/auth"
)

func main() {
	userID := flag.Int64("user", 1, "user id")
	role := flag.String("role", auth.RoleCustomer, "customer or admin")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg := config.Load()
	if cfg.Server.IsProduction() {
		fmt.Fprintln(os.Stderr, "devtoken refuses to run with ENV=production")
		os.Exit(1)
	}

	token, err := auth.MintToken(cfg.Auth, time.Now(), *userID, *role, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mint token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
