package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/reghealth/navigator/internal/models"
)

// ErrNotFound marks a chunk position outside the store's range.
var ErrNotFound = errors.New("chunk not found")

// ChunkStore is the ordered list of chunk records paired 1:1 with index
// vectors. Position equals insertion order. The store is written wholesale on
// ingestion and treated as an immutable snapshot while serving.
type ChunkStore struct {
	chunks []models.Chunk
}

func NewChunkStore(chunks []models.Chunk) *ChunkStore {
	return &ChunkStore{chunks: chunks}
}

// LoadChunks reads a chunk store previously written by Save.
func LoadChunks(path string) (*ChunkStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk store: %w", err)
	}
	var chunks []models.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("failed to parse chunk store: %w", err)
	}
	return &ChunkStore{chunks: chunks}, nil
}

// Save writes the chunk records as a JSON list, creating directories as needed.
func (s *ChunkStore) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.chunks, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *ChunkStore) Len() int {
	return len(s.chunks)
}

// Get returns the chunk at position, or ErrNotFound when out of range.
func (s *ChunkStore) Get(position int) (models.Chunk, error) {
	if position < 0 || position >= len(s.chunks) {
		return models.Chunk{}, fmt.Errorf("chunk index %d out of range: %w", position, ErrNotFound)
	}
	return s.chunks[position], nil
}

func (s *ChunkStore) All() []models.Chunk {
	return s.chunks
}

// FilterPositions returns the positions of every chunk matching the predicate,
// in store order.
func (s *ChunkStore) FilterPositions(match func(models.Chunk) bool) []int {
	var positions []int
	for i, c := range s.chunks {
		if match(c) {
			positions = append(positions, i)
		}
	}
	return positions
}
