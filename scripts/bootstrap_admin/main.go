// Command bootstrap_admin provisions the first administrator account so a
// fresh deployment can log in and create the remaining users over the API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/stefanovp/faculty-api/internal/models"
	"github.com/stefanovp/faculty-api/internal/repository"
	"github.com/stefanovp/faculty-api/pkg/config"
	"github.com/stefanovp/faculty-api/pkg/database"
)

func main() {
	var (
		email    string
		password string
		fullName string
		phone    string
	)

	flag.StringVar(&email, "email", "", "admin email (required)")
	flag.StringVar(&password, "password", "", "admin password (required)")
	flag.StringVar(&fullName, "name", "Administrator", "admin full name")
	flag.StringVar(&phone, "phone", "000000000", "nine digit phone number")
	flag.Parse()

	if email == "" || password == "" {
		log.Fatal("both -email and -password are required")
	}
	if len(phone) != 9 {
		log.Fatal("-phone must be exactly nine digits")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo := repository.NewUserRepository(db)
	if existing, err := repo.FindByEmail(ctx, email); err == nil && existing != nil {
		log.Fatalf("account %s already exists", email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     fullName,
		PhoneNumber:  phone,
		Role:         models.RoleAdmin,
		Active:       true,
	}
	if err := repo.Create(ctx, user); err != nil {
		log.Fatalf("failed to create admin: %v", err)
	}

	fmt.Printf("admin account created: %s (%s)\n", user.Email, user.ID)
}
