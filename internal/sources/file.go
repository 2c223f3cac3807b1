package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"dashguard/internal/domain/models"
)

// FileLoader reads a JSON array of threat records from disk
type FileLoader struct {
	path string
}

// NewFileLoader creates a loader for the JSON file at path
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// Slug returns the unique identifier for this loader
func (l *FileLoader) Slug() string { return "file" }

// Name returns the human-readable name of this loader
func (l *FileLoader) Name() string { return "JSON File" }

// Load reads and decodes the whole file
func (l *FileLoader) Load(ctx context.Context) ([]models.Threat, error) {
	if l.path == "" {
		return nil, fmt.Errorf("file loader: no path configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed file: %w", err)
	}

	var threats []models.Threat
	if err := json.Unmarshal(data, &threats); err != nil {
		return nil, fmt.Errorf("failed to decode feed file %s: %w", l.path, err)
	}
	if threats == nil {
		threats = []models.Threat{}
	}
	return threats, nil
}
