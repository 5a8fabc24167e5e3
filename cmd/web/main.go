package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"qbank/internal/app"
	"qbank/internal/app/observability"
	"qbank/internal/auth"
	"qbank/internal/db"
	"qbank/internal/review"

	"github.com/joho/godotenv"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-token" {
		os.Exit(hashToken())
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("env file error: %v", err)
		os.Exit(1)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Printf("config error: %v", err)
		os.Exit(1)
	}
	if cfg.AuthDisabled {
		log.Printf("WARNING: authentication disabled, every request runs as %q", auth.DevUser.Username)
	}

	dbConn, err := db.OpenPostgresWithConfig(context.Background(), cfg.DBDSN, db.PostgresConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifeMins) * time.Minute,
		PingAttempts:    cfg.DBPingAttempts,
		PingInterval:    2 * time.Second,
	})
	if err != nil {
		log.Printf("database error: %v", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	if err := db.Migrate(context.Background(), dbConn); err != nil {
		log.Printf("migration error: %v", err)
		os.Exit(1)
	}

	deps := app.Deps{
		Sessions:  review.NewStore(cfg.ReviewSessionTTL),
		Limiter:   app.NewRateLimiter(cfg.GenerateRateLimitPerMin, time.Minute),
		Collector: observability.NewCollector(dbConn),
	}
	r, err := app.NewRouter(cfg, dbConn, deps)
	if err != nil {
		log.Printf("router error: %v", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.LLMTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweep(ctx, deps)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("qbank web listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Printf("shutdown signal received")
	case err := <-errCh:
		log.Printf("server stopped: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func sweep(ctx context.Context, deps app.Deps) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := deps.Sessions.Sweep(); n > 0 {
				log.Printf("review: expired %d sessions", n)
			}
			deps.Limiter.Sweep()
		}
	}
}

// hashToken reads a token from stdin and prints the bcrypt hash for
// AUTH_ACCOUNTS or the accounts section of QBANK_CONFIG.
func hashToken() int {
	fmt.Fprint(os.Stderr, "token: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintf(os.Stderr, "read token: %v\n", err)
		return 1
	}
	hash, err := auth.HashToken(strings.TrimSpace(line))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	fmt.Println(hash)
	return 0
}
