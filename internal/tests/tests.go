package tests

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/vaultgraph/vaultgraph/internal/config"
	"github.com/vaultgraph/vaultgraph/internal/sqlite"
	"github.com/vaultgraph/vaultgraph/internal/storage"
	"gorm.io/gorm"
)

func GetConfig() *config.Config {
	return &config.Config{
		Debug: true,
		Chain: config.Chain_Mainnet,
		DatabaseConfig: config.DatabaseConfig{
			UseSqlite:  true,
			SqlitePath: "file::memory:?cache=shared",
		},
	}
}

// GetDatabaseConnection returns a fresh in-memory sqlite database with all
// tables migrated. Each call uses a distinct shared-cache name so parallel
// package tests do not see each other's rows.
func GetDatabaseConnection(cfg *config.Config) (gorm.Dialector, *gorm.DB, error) {
	path := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	d := sqlite.NewSqlite(path)
	grm, err := sqlite.NewGormSqliteFromSqlite(d)
	if err != nil {
		return nil, nil, err
	}
	if err := migrateAll(grm); err != nil {
		return nil, nil, err
	}
	return d, grm, nil
}

// GetFileBasedDatabaseConnection is for tests that need WAL semantics rather
// than the in-memory shared cache.
func GetFileBasedDatabaseConnection(cfg *config.Config) (string, *gorm.DB, error) {
	path := fmt.Sprintf("%s/%s.db", os.TempDir(), uuid.New().String())
	d := sqlite.NewSqlite(path)
	grm, err := sqlite.NewGormSqliteFromSqlite(d)
	if err != nil {
		return "", nil, err
	}
	if err := migrateAll(grm); err != nil {
		return "", nil, err
	}
	return path, grm, nil
}

func migrateAll(grm *gorm.DB) error {
	for _, table := range storage.AllTables() {
		if err := grm.AutoMigrate(table); err != nil {
			return err
		}
	}
	return nil
}
