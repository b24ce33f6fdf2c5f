package storage

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync/atomic"

	"github.com/raykavin/regimerun/pkg/core"
	"github.com/tidwall/buntdb"
)

// BuntStorage implements the core.PositionStorage interface using BuntDB
type BuntStorage struct {
	lastID int64
	db     *buntdb.DB
}

// FromMemory creates an in-memory storage
func FromMemory() (core.PositionStorage, error) {
	return NewBuntStorage(":memory:")
}

// FromFile creates a file-based storage
func FromFile(file string) (core.PositionStorage, error) {
	return NewBuntStorage(file)
}

// NewBuntStorage creates a new BuntDB storage instance
func NewBuntStorage(sourceFile string) (core.PositionStorage, error) {
	db, err := buntdb.Open(sourceFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open buntdb: %w", err)
	}

	err = db.CreateIndex("opened_index", "*", buntdb.IndexJSON("opened_at"))
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	storage := &BuntStorage{db: db}
	if err := storage.restoreLastID(); err != nil {
		return nil, err
	}

	return storage, nil
}

// restoreLastID recovers the ID counter from a persisted database so
// reopening a file never reuses identifiers
func (b *BuntStorage) restoreLastID() error {
	return b.db.View(func(tx *buntdb.Tx) error {
		return tx.Ascend("", func(key, _ string) bool {
			id, err := strconv.ParseInt(key, 10, 64)
			if err == nil && id > b.lastID {
				b.lastID = id
			}
			return true
		})
	})
}

// getID generates a unique ID for positions
func (b *BuntStorage) getID() int64 {
	return atomic.AddInt64(&b.lastID, 1)
}

// CreatePosition stores a new position in the database
func (b *BuntStorage) CreatePosition(position *core.Position) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		position.ID = b.getID()
		content, err := json.Marshal(position)
		if err != nil {
			return fmt.Errorf("failed to marshal position: %w", err)
		}

		_, _, err = tx.Set(strconv.FormatInt(position.ID, 10), string(content), nil)
		if err != nil {
			return fmt.Errorf("failed to store position: %w", err)
		}

		return nil
	})
}

// UpdatePosition updates an existing position in the database
func (b *BuntStorage) UpdatePosition(position *core.Position) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		id := strconv.FormatInt(position.ID, 10)

		// Check if position exists
		_, err := tx.Get(id)
		if err != nil {
			return fmt.Errorf("position not found: %w", err)
		}

		content, err := json.Marshal(position)
		if err != nil {
			return fmt.Errorf("failed to marshal position: %w", err)
		}

		_, _, err = tx.Set(id, string(content), nil)
		if err != nil {
			return fmt.Errorf("failed to update position: %w", err)
		}

		return nil
	})
}

// Positions retrieves positions from the database based on provided filters
func (b *BuntStorage) Positions(filters ...core.PositionFilter) ([]*core.Position, error) {
	positions := make([]*core.Position, 0)

	err := b.db.View(func(tx *buntdb.Tx) error {
		err := tx.Ascend("opened_index", func(_, value string) bool {
			var position core.Position
			err := json.Unmarshal([]byte(value), &position)
			if err != nil {
				log.Printf("Failed to unmarshal position: %v", err)
				return true // Continue iteration
			}

			// Apply all filters
			for _, filter := range filters {
				if !filter(position) {
					return true // Skip this position and continue iteration
				}
			}

			// All filters passed, add this position
			positions = append(positions, &position)
			return true
		})

		if err != nil {
			return fmt.Errorf("failed to iterate over positions: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return positions, nil
}

// Close closes the database connection
func (b *BuntStorage) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
