package db

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/creatorlane/billing-service/pkg/logger"
)

// Client представляет клиент для работы с базой данных.
type Client struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewClient создает соединение с Postgres и настраивает пул.
func NewClient(dsn string, log *logger.Logger) (*Client, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		log.Errorw("Failed to connect to database", "error", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Errorw("Failed to ping database", "error", err)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Infow("Connected to database successfully")
	return &Client{db: db, log: log}, nil
}

// DB возвращает нижележащее соединение sqlx
func (c *Client) DB() *sqlx.DB {
	return c.db
}

// Close закрывает соединение с базой данных.
func (c *Client) Close() error {
	if err := c.db.Close(); err != nil {
		c.log.Errorw("Failed to close database connection", "error", err)
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}

// RunMigrations применяет миграции из каталога migrationsPath.
// migrationsURL вида file://migrations, databaseURL это обычный Postgres DSN.
func RunMigrations(migrationsURL, databaseURL string, log *logger.Logger) error {
	m, err := migrate.New(migrationsURL, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Infow("No new migrations to apply")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	log.Infow("Migrations applied successfully")
	return nil
}
