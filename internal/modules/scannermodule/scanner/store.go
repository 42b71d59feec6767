package scanner

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/jmherbst/aria/internal/database"
)

// GormStore is the database-backed LibraryStore.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps a gorm handle as a LibraryStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// FindBySize returns every entry whose content has the given byte size,
// hashed or not yet hashed.
func (s *GormStore) FindBySize(sizeBytes int64) ([]*database.LibraryEntry, error) {
	var entries []*database.LibraryEntry
	if err := s.db.Where("size_bytes = ?", sizeBytes).Order("first_seen_at").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("looking up entries by size: %w", err)
	}
	return entries, nil
}

// SetHash records the backfilled content hash of an entry.
func (s *GormStore) SetHash(entryID, hash string) error {
	err := s.db.Model(&database.LibraryEntry{}).Where("id = ?", entryID).
		Update("hash", hash).Error
	if err != nil {
		return fmt.Errorf("updating entry hash: %w", err)
	}
	return nil
}

// HasAlias reports whether this exact alias location is already recorded.
func (s *GormStore) HasAlias(entryID string, sourceID uint32, path string) (bool, error) {
	var count int64
	err := s.db.Model(&database.EntryAlias{}).
		Where("entry_id = ? AND source_id = ? AND path = ?", entryID, sourceID, path).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("looking up alias: %w", err)
	}
	return count > 0, nil
}

// CreateEntry persists a new canonical entry.
func (s *GormStore) CreateEntry(entry *database.LibraryEntry) error {
	if err := s.db.Create(entry).Error; err != nil {
		return fmt.Errorf("creating library entry: %w", err)
	}
	return nil
}

// CreateAlias persists a new alias location.
func (s *GormStore) CreateAlias(alias *database.EntryAlias) error {
	if err := s.db.Create(alias).Error; err != nil {
		return fmt.Errorf("creating entry alias: %w", err)
	}
	return nil
}
