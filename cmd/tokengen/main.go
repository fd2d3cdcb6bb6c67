// Command tokengen mints a bearer token for calling the preferences API.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"notifydecision/pkg/auth"
	"notifydecision/pkg/config"
)

func main() {
	userID := flag.String("user", "", "user id to embed in the token")
	role := flag.String("role", auth.RoleUser, "role: user or admin")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	secret := flag.String("secret", config.GetEnv("JWT_SECRET", ""), "signing secret (default $JWT_SECRET)")
	flag.Parse()

	if *userID == "" || *secret == "" {
		flag.Usage()
		os.Exit(2)
	}

	token, err := auth.GenerateToken(*userID, *role, *secret, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
