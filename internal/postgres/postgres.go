package postgres

import (
	"fmt"

	"github.com/vaultgraph/vaultgraph/internal/config"
	"golang.org/x/xerrors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type PostgresConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	DbName   string
}

func PostgresConfigFromDbConfig(cfg *config.DatabaseConfig) *PostgresConfig {
	return &PostgresConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.User,
		Password: cfg.Password,
		DbName:   cfg.DbName,
	}
}

func (c *PostgresConfig) Dsn() string {
	authString := ""
	if c.Username != "" {
		authString = fmt.Sprintf("%s user=%s", authString, c.Username)
	}
	if c.Password != "" {
		authString = fmt.Sprintf("%s password=%s", authString, c.Password)
	}
	return fmt.Sprintf("host=%s %s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		c.Host,
		authString,
		c.DbName,
		c.Port,
	)
}

func NewGormPostgres(cfg *PostgresConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.Dsn()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to setup database: %w", err)
	}
	return db, nil
}

// WrapTxAndCommit runs fn inside tx when one is supplied, otherwise opens
// its own transaction and commits or rolls back around fn.
func WrapTxAndCommit[T any](fn func(*gorm.DB) (T, error), db *gorm.DB, tx *gorm.DB) (T, error) {
	exists := tx != nil

	if !exists {
		tx = db.Begin()
	}

	res, err := fn(tx)

	if err != nil && !exists {
		tx.Rollback()
	}
	if err == nil && !exists {
		tx.Commit()
	}
	return res, err
}
