package document

import (
	"encoding/json"
	"fmt"
	"time"

	"canvas-backend/internal/canvas"
)

// ExportVersion marks the current export file format.
const ExportVersion = 1

// ExportFile is the interop document format. It round-trips through
// Import without loss.
type ExportFile struct {
	Name           string           `json:"name"`
	Description    string           `json:"description"`
	Elements       []canvas.Element `json:"elements"`
	CanvasSettings canvas.Settings  `json:"canvasSettings"`
	Version        int              `json:"version"`
	ExportedAt     time.Time        `json:"exportedAt"`
}

// Export serializes a document into the export file format.
func Export(doc *Document, name, description string) ([]byte, error) {
	file := ExportFile{
		Name:           name,
		Description:    description,
		Elements:       doc.Elements,
		CanvasSettings: doc.Settings,
		Version:        ExportVersion,
		ExportedAt:     time.Now().UTC(),
	}
	if file.Elements == nil {
		file.Elements = []canvas.Element{}
	}
	return json.MarshalIndent(file, "", "  ")
}

// Import parses an export file back into a document, validating every
// element so a hand-edited file cannot smuggle broken state in.
func Import(data []byte) (*ExportFile, error) {
	var file ExportFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	if file.Version <= 0 || file.Version > ExportVersion {
		return nil, fmt.Errorf("import: unsupported version %d", file.Version)
	}
	seen := make(map[string]bool, len(file.Elements))
	for i := range file.Elements {
		if err := file.Elements[i].Validate(); err != nil {
			return nil, fmt.Errorf("import: element %d: %w", i, err)
		}
		if seen[file.Elements[i].ID] {
			return nil, fmt.Errorf("import: duplicate element id %q", file.Elements[i].ID)
		}
		seen[file.Elements[i].ID] = true
	}
	return &file, nil
}

// Document converts the parsed file into a loadable document.
func (f *ExportFile) Document() *Document {
	return &Document{Elements: f.Elements, Settings: f.CanvasSettings}
}
