// Command devtoken mints a bearer token for local testing, signed with the
// server's JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/umar/staychat/internal/auth"
	"github.com/umar/staychat/internal/config"
	"github.com/umar/staychat/internal/models"
)

func main() {
	id := flag.String("id", "", "user id (random when empty)")
	name := flag.String("name", "Test User", "display name")
	role := flag.String("role", string(models.RoleTraveler), "traveler or host")
	photo := flag.String("photo", "", "profile photo URL")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	user := models.User{ID: *id, Name: *name, ProfilePhoto: *photo, Role: models.Role(*role)}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if !user.Role.Valid() {
		slog.Error("invalid role", "role", *role)
		os.Exit(1)
	}

	token, err := auth.GenerateToken(user, []byte(cfg.JWTSecret), *ttl)
	if err != nil {
		slog.Error("failed to sign token", "error", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
