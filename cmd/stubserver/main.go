// Package main runs the local forum API that qaclient talks to during
// development and demos.
//
// RUNNING IT:
//
//	go run ./cmd/stubserver --seed
//	QA_BASE_URL=http://localhost:8080/api go run ./cmd/qaclient questions list
//
// State lives in memory and is gone when the process exits, unless --db
// names a file. --seed adds the account demo@campus.local (password "demo")
// and a few questions.
//
// CONFIGURATION:
// Flags win over environment variables, which win over defaults. A .env file
// in the working directory is loaded first if present.
//
//	STUB_PORT        --port        8080
//	STUB_JWT_SECRET  --jwt-secret  random per process
//	STUB_TOKEN_TTL   --token-ttl   24h
//	STUB_LOG_LEVEL   --log-level   info
//	STUB_DB_PATH     --db          :memory:
package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sakif/campus-client/internal/auth"
	"github.com/sakif/campus-client/internal/logger"
	"github.com/sakif/campus-client/internal/server"
)

type options struct {
	port     int
	secret   string
	tokenTTL time.Duration
	level    string
	dbPath   string
	seed     bool
}

func main() {
	// Loaded before the command is built so the flag defaults see it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "stubserver: reading .env: %v\n", err)
		os.Exit(1)
	}

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "stubserver: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "stubserver",
		Short:         "Local campus Q&A forum API",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.port, "port", envInt("STUB_PORT", 8080), "listen port")
	f.StringVar(&opts.secret, "jwt-secret", os.Getenv("STUB_JWT_SECRET"), "HMAC secret for bearer tokens (random if empty)")
	f.DurationVar(&opts.tokenTTL, "token-ttl", envDuration("STUB_TOKEN_TTL", auth.DefaultTTL), "token lifetime")
	f.StringVar(&opts.level, "log-level", envString("STUB_LOG_LEVEL", "info"), "debug, info, warn or error")
	f.StringVar(&opts.dbPath, "db", envString("STUB_DB_PATH", ":memory:"), "SQLite file for forum state")
	f.BoolVar(&opts.seed, "seed", false, "create a demo user and questions")
	return cmd
}

func run(cmd *cobra.Command, opts options) error {
	log := logger.Setup(cmd.OutOrStdout(), logger.ParseLevel(opts.level), "text")

	if opts.secret == "" {
		s, err := randomSecret()
		if err != nil {
			return fmt.Errorf("generating secret: %w", err)
		}
		opts.secret = s
		log.Warn("STUB_JWT_SECRET not set; tokens will not survive a restart")
	}

	srv, err := server.New(server.Config{
		Port:      opts.port,
		JWTSecret: opts.secret,
		TokenTTL:  opts.tokenTTL,
		DBPath:    opts.dbPath,
	}, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer srv.Close()

	if opts.seed {
		u, err := srv.SeedDemo(cmd.Context())
		switch {
		case errors.Is(err, server.ErrDemoSeeded):
			log.Info("demo data already present", slog.String("db", opts.dbPath))
		case err != nil:
			return err
		default:
			log.Info("demo data seeded", slog.String("email", u.Email), slog.Int64("user_id", u.ID))
		}
	}

	// Start blocks until SIGINT/SIGTERM.
	return srv.Start()
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
