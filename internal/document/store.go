// Package document persists project canvas documents and schedules the
// debounced write-behind flushes from live room state.
package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"canvas-backend/internal/canvas"
	"canvas-backend/internal/model"
)

// Document is the loadable/savable unit: the element list plus canvas
// settings for one project.
type Document struct {
	Elements []canvas.Element `json:"elements"`
	Settings canvas.Settings  `json:"canvasSettings"`
}

// Store abstracts document persistence. The sync core treats it as a
// write-behind cache target, not as the session source of truth.
type Store interface {
	Load(ctx context.Context, projectID int64) (*Document, error)
	Save(ctx context.Context, projectID int64, doc *Document) error
}

// DBStore keeps documents in the canvas_documents jsonb row.
type DBStore struct {
	db *gorm.DB
}

// NewDBStore wraps a gorm connection.
func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db}
}

// Load reads the document for a project. A missing row yields an empty
// document with default settings, so a fresh project opens cleanly.
func (s *DBStore) Load(ctx context.Context, projectID int64) (*Document, error) {
	var row model.CanvasDocument
	err := s.db.WithContext(ctx).Where("project_id = ?", projectID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Document{Elements: []canvas.Element{}, Settings: canvas.DefaultSettings()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load document %d: %w", projectID, err)
	}

	doc := &Document{Settings: canvas.DefaultSettings()}
	if len(row.Elements) > 0 {
		if err := json.Unmarshal(row.Elements, &doc.Elements); err != nil {
			return nil, fmt.Errorf("load document %d: corrupt elements: %w", projectID, err)
		}
	}
	if doc.Elements == nil {
		doc.Elements = []canvas.Element{}
	}
	if len(row.Settings) > 0 {
		if err := json.Unmarshal(row.Settings, &doc.Settings); err != nil {
			return nil, fmt.Errorf("load document %d: corrupt settings: %w", projectID, err)
		}
	}
	return doc, nil
}

// Save upserts the document row, bumping the version guard so
// interleaved writers cannot silently regress each other.
func (s *DBStore) Save(ctx context.Context, projectID int64, doc *Document) error {
	elements, err := json.Marshal(doc.Elements)
	if err != nil {
		return fmt.Errorf("save document %d: %w", projectID, err)
	}
	settings, err := json.Marshal(doc.Settings)
	if err != nil {
		return fmt.Errorf("save document %d: %w", projectID, err)
	}

	row := model.CanvasDocument{
		ProjectID: projectID,
		Elements:  elements,
		Settings:  settings,
		Version:   1,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "project_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"elements": elements,
			"settings": settings,
			"version":  gorm.Expr("canvas_documents.version + 1"),
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save document %d: %w", projectID, err)
	}
	return nil
}
