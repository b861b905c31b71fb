package documents

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	apperrors "docreview/review-portal/review-portal-backend/internal/errors"
	"docreview/review-portal/review-portal-backend/internal/feedback"
	"docreview/review-portal/review-portal-backend/internal/merge"
	"docreview/review-portal/review-portal-backend/internal/workflow"
)

type Repository interface {
	CreateDocument(ctx context.Context, doc *Document) error
	GetDocumentByID(ctx context.Context, id string) (*Document, error)
	// UpdateDocument persists doc if its stored revision still equals doc.Revision, then bumps it.
	UpdateDocument(ctx context.Context, doc *Document) error
	ListDocumentIDs(ctx context.Context) ([]string, error)
}

// documentRecord is the review_documents row. Collections are stored as JSON columns.
type documentRecord struct {
	ID              string                                       `gorm:"type:uuid;primaryKey"`
	Title           string                                       `gorm:"not null"`
	Content         string                                       `gorm:"type:text;not null"`
	OriginalContent string                                       `gorm:"type:text;not null"`
	Metadata        datatypes.JSONType[map[string]string]        `gorm:"type:jsonb"`
	Feedback        datatypes.JSONType[[]feedback.Item]          `gorm:"type:jsonb"`
	Changes         datatypes.JSONType[[]merge.AppliedChange]    `gorm:"type:jsonb"`
	PositionMap     datatypes.JSONType[merge.PositionMap]        `gorm:"type:jsonb"`
	Versions        datatypes.JSONType[[]merge.Version]          `gorm:"type:jsonb"`
	Resolutions     datatypes.JSONType[[]feedback.ConflictGroup] `gorm:"type:jsonb"`
	Workflow        datatypes.JSONType[workflow.State]           `gorm:"type:jsonb"`
	Revision        int64                                        `gorm:"not null;default:0"`
	CreatedBy       string                                       `gorm:"not null"`
	CreatedAt       time.Time                                    `gorm:"not null"`
	UpdatedAt       time.Time                                    `gorm:"not null"`
}

func (documentRecord) TableName() string {
	return "review_documents"
}

func toRecord(doc *Document) documentRecord {
	return documentRecord{
		ID:              doc.ID,
		Title:           doc.Title,
		Content:         doc.Content,
		OriginalContent: doc.OriginalContent,
		Metadata:        datatypes.NewJSONType(doc.Metadata),
		Feedback:        datatypes.NewJSONType(doc.Items),
		Changes:         datatypes.NewJSONType(doc.Changes),
		PositionMap:     datatypes.NewJSONType(doc.Positions),
		Versions:        datatypes.NewJSONType(doc.Versions),
		Resolutions:     datatypes.NewJSONType(doc.Resolutions),
		Workflow:        datatypes.NewJSONType(doc.Workflow),
		Revision:        doc.Revision,
		CreatedBy:       doc.CreatedBy,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

func (r documentRecord) toDocument() *Document {
	return &Document{
		ID:       r.ID,
		Title:    r.Title,
		Metadata: r.Metadata.Data(),
		Workspace: merge.Workspace{
			OriginalContent: r.OriginalContent,
			Content:         r.Content,
			Items:           r.Feedback.Data(),
			Changes:         r.Changes.Data(),
			Positions:       r.PositionMap.Data(),
			Versions:        r.Versions.Data(),
		},
		Workflow:    r.Workflow.Data(),
		Resolutions: r.Resolutions.Data(),
		Revision:    r.Revision,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// Migrate creates the review_documents table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&documentRecord{}); err != nil {
		return fmt.Errorf("failed to migrate documents: %w", err)
	}
	return nil
}

func (r *gormRepository) CreateDocument(ctx context.Context, doc *Document) error {
	rec := toRecord(doc)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

func (r *gormRepository) GetDocumentByID(ctx context.Context, id string) (*Document, error) {
	var rec documentRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return rec.toDocument(), nil
}

func (r *gormRepository) UpdateDocument(ctx context.Context, doc *Document) error {
	rec := toRecord(doc)
	res := r.db.WithContext(ctx).
		Model(&documentRecord{}).
		Where("id = ? AND revision = ?", doc.ID, doc.Revision).
		Updates(map[string]any{
			"title":            rec.Title,
			"content":          rec.Content,
			"original_content": rec.OriginalContent,
			"metadata":         rec.Metadata,
			"feedback":         rec.Feedback,
			"changes":          rec.Changes,
			"position_map":     rec.PositionMap,
			"versions":         rec.Versions,
			"resolutions":      rec.Resolutions,
			"workflow":         rec.Workflow,
			"revision":         doc.Revision + 1,
			"updated_at":       rec.UpdatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update document: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return staleRevision(doc)
	}
	doc.Revision++
	return nil
}

func (r *gormRepository) ListDocumentIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&documentRecord{}).Order("created_at ASC").Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return ids, nil
}

// memoryRepository keeps documents in process for tests and local runs.
type memoryRepository struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

func NewMemoryRepository() Repository {
	return &memoryRepository{docs: make(map[string]*Document)}
}

func (r *memoryRepository) CreateDocument(_ context.Context, doc *Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[doc.ID]; ok {
		return apperrors.New(apperrors.CodeConflict, "document already exists").With("document_id", doc.ID)
	}
	r.docs[doc.ID] = doc.Clone()
	return nil
}

func (r *memoryRepository) GetDocumentByID(_ context.Context, id string) (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, notFound(id)
	}
	return doc.Clone(), nil
}

func (r *memoryRepository) UpdateDocument(_ context.Context, doc *Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.docs[doc.ID]
	if !ok {
		return notFound(doc.ID)
	}
	if stored.Revision != doc.Revision {
		return staleRevision(doc)
	}
	doc.Revision++
	r.docs[doc.ID] = doc.Clone()
	return nil
}

func (r *memoryRepository) ListDocumentIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.docs))
	for id := range r.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func notFound(id string) error {
	return apperrors.New(apperrors.CodeNotFound, "document not found").With("document_id", id)
}

func staleRevision(doc *Document) error {
	return apperrors.New(apperrors.CodeConflict, "document was modified concurrently").
		With("document_id", doc.ID).
		With("revision", strconv.FormatInt(doc.Revision, 10))
}
