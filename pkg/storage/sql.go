package storage

import (
	"fmt"
	"time"

	"github.com/raykavin/regimerun/pkg/core"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

// SQLStorage implements the core.PositionStorage interface using a SQL database via GORM
type SQLStorage struct {
	db *gorm.DB
}

// FromSQL creates a new SQL storage instance
func FromSQL(dialect gorm.Dialector, opts ...gorm.Option) (core.PositionStorage, error) {
	db, err := gorm.Open(dialect, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Auto migrate the position model
	err = db.AutoMigrate(&core.Position{})
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLStorage{
		db: db,
	}, nil
}

// CreatePosition creates a new position in the SQL database
func (s *SQLStorage) CreatePosition(position *core.Position) error {
	result := s.db.Create(position)
	if result.Error != nil {
		return fmt.Errorf("failed to create position: %w", result.Error)
	}

	return nil
}

// UpdatePosition updates an existing position in the SQL database
func (s *SQLStorage) UpdatePosition(position *core.Position) error {
	var existing core.Position
	result := s.db.First(&existing, position.ID)
	if result.Error != nil {
		return fmt.Errorf("position not found: %w", result.Error)
	}

	result = s.db.Save(position)
	if result.Error != nil {
		return fmt.Errorf("failed to update position: %w", result.Error)
	}

	return nil
}

// Positions retrieves positions from the SQL database based on provided filters
func (s *SQLStorage) Positions(filters ...core.PositionFilter) ([]*core.Position, error) {
	var positions []*core.Position

	result := s.db.Find(&positions)
	if result.Error != nil && result.Error != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("failed to fetch positions: %w", result.Error)
	}

	// Apply filters in memory
	// Note: This could be optimized by translating filters to SQL WHERE clauses
	filtered := lo.Filter(positions, func(position *core.Position, _ int) bool {
		for _, filter := range filters {
			if !filter(*position) {
				return false
			}
		}
		return true
	})

	return filtered, nil
}

// Close closes the database connection
func (s *SQLStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	return sqlDB.Close()
}

// WithTransaction executes the given function within a database transaction
func (s *SQLStorage) WithTransaction(fn func(tx *gorm.DB) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(tx)
	})
}
