package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"SpeseTracker/api/spese"
	"SpeseTracker/internal/appmanager"
	"SpeseTracker/internal/config"
)

// InitDB loads DB config from env vars
func InitDB() (*sql.DB, error) {
	user := os.Getenv("DB_USER")
	pass := os.Getenv("DB_PASSWORD")
	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	name := os.Getenv("DB_NAME")
	connStr := fmt.Sprintf(
		"user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
		user, pass, host, port, name,
	)
	return sql.Open("postgres", connStr)
}

// InitPgxPool opens the pgx pool used by the ingestion pipeline and the
// batch reclassification path.
func InitPgxPool(ctx context.Context) (*pgxpool.Pool, error) {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_HOST"), os.Getenv("DB_PORT"), os.Getenv("DB_NAME"),
	)
	return pgxpool.New(ctx, connStr)
}

func main() {
	// Load .env for local dev (ignored when vars come from the environment)
	_ = godotenv.Load(".env")

	// Statement dates and month boundaries follow the bank's timezone.
	if loc, err := time.LoadLocation(config.DefaultTimeZone); err == nil {
		time.Local = loc
	}

	ctx := context.Background()

	db, err := InitDB()
	if err != nil {
		log.Fatal("failed to connect to DB:", err)
	}
	pool, err := InitPgxPool(ctx)
	if err != nil {
		log.Fatal("failed to create pgx pool:", err)
	}
	appmanager.SetDB(db)
	appmanager.SetPgxPool(pool)

	// Schema is ensured up front so every service sees the same tables.
	if err := spese.EnsureSchema(ctx, pool); err != nil {
		log.Fatal("failed to ensure schema:", err)
	}

	manager := appmanager.NewAppManager()

	// Load service configs from YAML
	servicesCfg, err := appmanager.LoadServiceSequence("services.yaml")
	if err != nil {
		log.Fatal("failed to load service sequence:", err)
	}

	// Automatically register all services
	manager.AutoRegisterServices(servicesCfg)

	// Start all services
	if err := manager.StartAll(); err != nil {
		log.Fatal("failed to start:", err)
	}

	// Graceful shutdown handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	if err := manager.StopAll(); err != nil {
		log.Fatal("failed to stop:", err)
	}
	pool.Close()
}
