package audit

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// GormStore persists entries to the audit_entries table. It only ever inserts.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates the audit table.
func (s *GormStore) Migrate() error {
	if err := s.db.AutoMigrate(&Entry{}); err != nil {
		return fmt.Errorf("failed to migrate audit entries: %w", err)
	}
	return nil
}

func (s *GormStore) Append(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last int64
		err := tx.Model(&Entry{}).
			Where("document_id = ?", entries[0].DocumentID).
			Select("COALESCE(MAX(sequence), 0)").
			Scan(&last).Error
		if err != nil {
			return fmt.Errorf("failed to read audit sequence: %w", err)
		}
		for i := range entries {
			last++
			entries[i].Sequence = last
		}
		if err := tx.Create(&entries).Error; err != nil {
			return fmt.Errorf("failed to append audit entries: %w", err)
		}
		return nil
	})
}

func (s *GormStore) List(ctx context.Context, documentID string) ([]Entry, error) {
	var entries []Entry
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("at ASC, sequence ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}

var _ Store = (*GormStore)(nil)
