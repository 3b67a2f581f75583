package migrations

import (
	"github.com/vaultgraph/vaultgraph/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/xerrors"
	"gorm.io/gorm"
)

type Migrator struct {
	Db     *gorm.DB
	Logger *zap.Logger
}

func NewMigrator(grm *gorm.DB, l *zap.Logger) *Migrator {
	return &Migrator{
		Db:     grm,
		Logger: l,
	}
}

func (m *Migrator) MigrateAll() error {
	for _, table := range storage.AllTables() {
		if err := m.Db.AutoMigrate(table); err != nil {
			m.Logger.Sugar().Errorw("Failed to migrate table", zap.Error(err))
			return xerrors.Errorf("migration failed: %w", err)
		}
	}
	m.Logger.Sugar().Debugw("Migrations complete")
	return nil
}
