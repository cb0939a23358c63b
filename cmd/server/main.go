package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"vendomat/machine/internal/config"
	"vendomat/machine/internal/httpapi"
	"vendomat/machine/internal/kvstore"
	filestore "vendomat/machine/internal/kvstore/file"
	"vendomat/machine/internal/kvstore/memory"
	pgstore "vendomat/machine/internal/kvstore/postgres"
	redisstore "vendomat/machine/internal/kvstore/redis"
	"vendomat/machine/internal/machine"
	"vendomat/machine/internal/maintenance"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("loaded environment from .env")
	}

	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	gateway, closers := buildGateway(ctx, cfg)

	store := maintenance.NewStore(gateway)
	m := machine.New(store, cfg.MachineID, nil)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, cfg.OperatorUsername, cfg.OperatorPassword)
	api := httpapi.New(m, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("vending machine %s listening on %s", cfg.MachineID, cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// buildGateway picks the persistence backend. Postgres and the file store are
// durable and refuse to start when misconfigured; redis falls back to memory
// when unreachable since a cache-style deployment can tolerate it.
func buildGateway(ctx context.Context, cfg config.Config) (kvstore.Gateway, []func() error) {
	closers := make([]func() error, 0, 1)

	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		closers = append(closers, pg.Close)
		log.Println("state gateway: postgres")
		return pg, closers
	case cfg.RedisAddr != "":
		rs := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisKeyPrefix)
		if err := rs.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using in-memory gateway", err)
			return memory.New(), closers
		}
		closers = append(closers, rs.Close)
		log.Println("state gateway: redis")
		return rs, closers
	case cfg.DataFile != "":
		fs, err := filestore.Open(cfg.DataFile)
		if err != nil {
			log.Fatalf("cannot open data file %s: %v", cfg.DataFile, err)
		}
		closers = append(closers, fs.Close)
		log.Println("state gateway: file")
		return fs, closers
	default:
		log.Println("state gateway: in-memory")
		return memory.New(), closers
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.OperatorPassword != "" && len(cfg.OperatorPassword) < 8 {
		return fmt.Errorf("OPERATOR_PASSWORD must be at least 8 characters when set")
	}
	return nil
}
