package postgres

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var ErrNotConfigured = errors.New("database is not configured")

// New connects to the database named by DATABASE_URL, or by the DB_* parts
// when the URL is unset.
func New() (*sqlx.DB, error) {
	dsn, err := dsnFromEnv()
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// Configured reports whether any database settings are present.
func Configured() bool {
	_, err := dsnFromEnv()
	return err == nil
}

func dsnFromEnv() (string, error) {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url, nil
	}

	host := os.Getenv("DB_HOST")
	if host == "" {
		return "", ErrNotConfigured
	}

	port := os.Getenv("DB_PORT")
	if port == "" {
		port = "5432"
	}
	sslMode := os.Getenv("DB_SSLMODE")
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"), os.Getenv("DB_NAME"), sslMode), nil
}
