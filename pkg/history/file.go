package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileStore keeps records in a single JSON file
type FileStore struct {
	filePath string
	mu       sync.RWMutex
	records  map[string]*Record
}

type fileContents struct {
	Records map[string]*Record `json:"records"`
}

// NewFileStore opens the store at filePath, a missing file is created on first save
func NewFileStore(filePath string) (*FileStore, error) {
	s := &FileStore{
		filePath: filePath,
		records:  make(map[string]*Record),
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var contents fileContents
	if err := json.Unmarshal(data, &contents); err != nil {
		return fmt.Errorf("failed to unmarshal history: %w", err)
	}

	if contents.Records != nil {
		s.records = contents.Records
	}
	return nil
}

// save writes the file atomically, callers hold the write lock
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(fileContents{Records: s.records}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}

	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Create adds a new record
func (s *FileStore) Create(record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return fmt.Errorf("record '%s' already exists", record.ID)
	}

	s.records[record.ID] = record
	return s.save()
}

// Get finds a record by id or transaction hash
func (s *FileStore) Get(idOrTxHash string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if record, ok := s.records[idOrTxHash]; ok {
		return record, nil
	}
	for _, record := range s.records {
		if record.TxHash != "" && record.TxHash == idOrTxHash {
			return record, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, idOrTxHash)
}

// Update replaces an existing record
func (s *FileStore) Update(record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, record.ID)
	}

	record.UpdatedAt = time.Now().UTC()
	s.records[record.ID] = record
	return s.save()
}

// List returns records newest first
func (s *FileStore) List(limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*Record, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Close is a no-op, every write is flushed immediately
func (s *FileStore) Close() error {
	return nil
}

// Path returns the storage file path
func (s *FileStore) Path() string {
	return s.filePath
}
