package main

import (
	"flag"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/service"
	"golang.org/x/term"
)

// issue-token mints identity tokens for local testing. The secret comes from
// JWT_SECRET, or is prompted for when -prompt is set.
func main() {
	var (
		userID int
		role   string
		hours  int
		prompt bool
	)
	flag.IntVar(&userID, "user", 0, "User id carried by the token")
	flag.StringVar(&role, "role", string(model.RoleStudent), "student, reviewer or admin")
	flag.IntVar(&hours, "hours", 0, "Expiry in hours (default JWT_EXPIRY_HOURS)")
	flag.BoolVar(&prompt, "prompt", false, "Read the signing secret from the terminal")
	flag.Parse()

	cfg := config.Load()
	secret := cfg.JWTSecret
	if prompt || os.Getenv("JWT_SECRET") == "" {
		fmt.Fprint(os.Stderr, "Enter JWT secret: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error reading secret:", err)
			os.Exit(1)
		}
		if len(raw) > 0 {
			secret = string(raw)
		}
	}

	expiry := cfg.JWTExpiry
	if hours > 0 {
		expiry = time.Duration(hours) * time.Hour
	}

	token, err := service.NewTokenService(secret, expiry).Issue(userID, model.Role(role))
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
