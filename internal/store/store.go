package store

import (
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/credgate/credgate/internal/models"
)

// Store wraps all durable state: credentials, grants, flow states, agents,
// audit logs, and the local vault's ciphertext table.
type Store struct {
	db *gorm.DB
}

func New(driver, dsn string) (*Store, error) {
	dialector, err := GetDialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&models.Credential{},
		&models.PermissionGrant{},
		&models.OAuthFlowState{},
		&models.Agent{},
		&models.AuditLog{},
		&models.VaultSecret{},
	); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Health checks the database connection
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// DB returns the underlying GORM database connection (for transactions)
func (s *Store) DB() *gorm.DB {
	return s.db
}
