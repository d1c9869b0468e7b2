package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"horizon/internal/domain/user"
	"horizon/internal/infrastructure/postgres"
	"horizon/internal/shared/auth"
	"horizon/internal/shared/config"
)

const usage = `Horizon Admin CLI - Management commands for the Horizon API

Usage:
  admin <command> [options]

Commands:
  migrate                  Apply pending database migrations
  create-user              Provision a user who can sign in
  issue-token              Print a session token for a user (local testing)
  expire-link-sessions     Close link sessions that ran past their expiry
  purge-revoked-sessions   Drop revocation records for tokens that have expired

Examples:
  admin migrate
  admin create-user --email=ada@example.com --first-name=Ada --last-name=Lovelace --password=s3cretpass
  admin issue-token --email=ada@example.com --password=s3cretpass
  admin expire-link-sessions --timeout=1m
`

const defaultTimeout = 30 * time.Second

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(1)
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load .env: %v", err)
	}

	command := os.Args[1]

	switch command {
	case "migrate":
		runMigrate(os.Args[2:])
	case "create-user":
		runCreateUser(os.Args[2:])
	case "issue-token":
		runIssueToken(os.Args[2:])
	case "expire-link-sessions":
		runExpireLinkSessions(os.Args[2:])
	case "purge-revoked-sessions":
		runPurgeRevokedSessions(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage)
		os.Exit(1)
	}
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfig()
	if err := postgres.Migrate(cfg.Database.URL()); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Migrations applied")
}

func runCreateUser(args []string) {
	fs := flag.NewFlagSet("create-user", flag.ExitOnError)

	email := fs.String("email", "", "Email address used to sign in")
	firstName := fs.String("first-name", "", "First name")
	lastName := fs.String("last-name", "", "Last name")
	password := fs.String("password", "", "Password (at least 8 characters)")

	fs.Usage = func() {
		fmt.Println("Usage: admin create-user [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if err := auth.ValidatePassword(*password); err != nil {
		fmt.Printf("Error: %v\n", err)
		fs.Usage()
		os.Exit(1)
	}

	hash, err := auth.HashPassword(*password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	params := user.CreateUserParams{
		Email:        strings.TrimSpace(*email),
		FirstName:    strings.TrimSpace(*firstName),
		LastName:     strings.TrimSpace(*lastName),
		PasswordHash: &hash,
	}
	if err := params.Validate(); err != nil {
		fmt.Printf("Error: %v\n", err)
		fs.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	db := connect(ctx, loadConfig())
	defer db.Close()

	u, err := postgres.NewUserRepository(db).Create(ctx, params)
	if err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}

	fmt.Printf("Created user %d (%s) <%s>\n", u.ID, u.FullName(), u.Email)
}

func runIssueToken(args []string) {
	fs := flag.NewFlagSet("issue-token", flag.ExitOnError)

	email := fs.String("email", "", "Email address of the user")
	password := fs.String("password", "", "Password of the user")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *email == "" || *password == "" {
		fmt.Println("Error: --email and --password are required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	db := connect(ctx, cfg)
	defer db.Close()

	u, err := postgres.NewUserRepository(db).GetByEmail(ctx, *email)
	if errors.Is(err, user.ErrUserNotFound) {
		log.Fatal("Invalid email or password")
	}
	if err != nil {
		log.Fatalf("Failed to look up user: %v", err)
	}
	if u.PasswordHash == nil || auth.VerifyPassword(*u.PasswordHash, *password) != nil {
		log.Fatal("Invalid email or password")
	}

	token, err := auth.NewJWT(cfg.JWT.Secret, cfg.JWT.SessionTTL).Generate(u.ID, u.Email)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	fmt.Println(token)
}

func runExpireLinkSessions(args []string) {
	fs := flag.NewFlagSet("expire-link-sessions", flag.ExitOnError)
	timeout := fs.Duration("timeout", defaultTimeout, "Timeout for the operation")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db := connect(ctx, loadConfig())
	defer db.Close()

	n, err := postgres.NewLinkRepository(db).ExpireSessions(ctx, time.Now())
	if err != nil {
		log.Fatalf("Failed to expire link sessions: %v", err)
	}
	fmt.Printf("Expired %d link session(s)\n", n)
}

func runPurgeRevokedSessions(args []string) {
	fs := flag.NewFlagSet("purge-revoked-sessions", flag.ExitOnError)
	timeout := fs.Duration("timeout", defaultTimeout, "Timeout for the operation")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db := connect(ctx, loadConfig())
	defer db.Close()

	n, err := postgres.NewSessionRepository(db).PurgeExpired(ctx, time.Now())
	if err != nil {
		log.Fatalf("Failed to purge revoked sessions: %v", err)
	}
	fmt.Printf("Purged %d revoked session(s)\n", n)
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func connect(ctx context.Context, cfg *config.Config) *postgres.DB {
	db, err := postgres.New(ctx, cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	return db
}
