// Package storage persists serialized models.
//
// A FileStore keeps one model document on disk with atomic writes. A Registry
// keeps many named documents in SQLite with an in-memory LRU cache in front.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rewired-gh/loadforecast/internal/models"
	"github.com/rewired-gh/loadforecast/internal/serialize"
)

// ErrModelNotFound is returned when no stored model matches.
var ErrModelNotFound = errors.New("model not found")

// FileStore reads and writes a single model file.
type FileStore struct {
	mu sync.RWMutex

	filePath        string
	doubleEncode    bool
	filePermissions os.FileMode
	dirPermissions  os.FileMode
}

// NewFileStore creates a FileStore. With doubleEncode the document is written
// as a JSON string literal holding the JSON object, the legacy layout.
// If filePath is empty, uses OS-appropriate tmp directory
func NewFileStore(filePath string, doubleEncode bool, filePermissions, dirPermissions os.FileMode) *FileStore {
	if filePath == "" {
		filePath = filepath.Join(os.TempDir(), "loadforecast", "model.json")
	}
	return &FileStore{
		filePath:        filePath,
		doubleEncode:    doubleEncode,
		filePermissions: filePermissions,
		dirPermissions:  dirPermissions,
	}
}

// Path returns the model file path.
func (s *FileStore) Path() string {
	return s.filePath
}

// Save writes doc to the model file through a temporary file and a rename.
func (s *FileStore) Save(doc []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !json.Valid(doc) {
		return fmt.Errorf("refusing to write invalid JSON document")
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, s.dirPermissions); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	data := doc
	if s.doubleEncode {
		wrapped, err := json.Marshal(string(doc))
		if err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
		data = wrapped
	}

	// Write to temporary file first (atomic write)
	tempPath := s.filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, s.filePermissions); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	if err := os.Rename(tempPath, s.filePath); err != nil {
		_ = os.Remove(tempPath) // Clean up temp file on rename failure
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Load returns the stored document as written, which may be either layout.
// A missing file yields ErrModelNotFound.
func (s *FileStore) Load() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Clean up any stale temp files from previous crashes
	tempPath := s.filePath + ".tmp"
	if _, err := os.Stat(tempPath); err == nil {
		_ = os.Remove(tempPath)
	}

	data, err := os.ReadFile(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, s.filePath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// SaveModel serializes m and saves it. It returns the document size.
func (s *FileStore) SaveModel(m *models.Model) (int, error) {
	doc, err := serialize.Serialize(m)
	if err != nil {
		return 0, err
	}
	if err := s.Save(doc); err != nil {
		return 0, err
	}
	return len(doc), nil
}

// LoadModel loads and deserializes the stored model.
func (s *FileStore) LoadModel() (*models.Model, int, error) {
	data, err := s.Load()
	if err != nil {
		return nil, 0, err
	}
	m, err := serialize.Deserialize(data)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load %s: %w", s.filePath, err)
	}
	return m, len(data), nil
}
