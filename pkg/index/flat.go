package index

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"sort"
)

// Flat is a brute-force nearest-neighbor index over fixed-dimension vectors.
// Entries keep insertion order; a search hit's position is the only mapping
// back to the chunk store. Distances are squared L2, which preserves the
// ranking of true Euclidean distance.
type Flat struct {
	dim     int
	vectors [][]float32
}

func NewFlat(dim int) (*Flat, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dim)
	}
	return &Flat{dim: dim}, nil
}

// Build creates an index from an initial batch of vectors. All vectors must
// share the same dimension; a mismatch is a construction error.
func Build(vectors [][]float32) (*Flat, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("cannot build index from zero vectors")
	}
	f, err := NewFlat(len(vectors[0]))
	if err != nil {
		return nil, err
	}
	if err := f.Add(vectors); err != nil {
		return nil, err
	}
	return f, nil
}

// Add appends vectors to the index. Existing entries are never reordered.
func (f *Flat) Add(vectors [][]float32) error {
	for _, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("vector dimension %d does not match index dimension %d", len(v), f.dim)
		}
	}
	f.vectors = append(f.vectors, vectors...)
	return nil
}

func (f *Flat) NTotal() int {
	return len(f.vectors)
}

func (f *Flat) Dimension() int {
	return f.dim
}

// Search returns the k nearest entries as parallel position and distance
// slices, ordered by ascending distance with position as the tie-break.
// Searching an empty index returns empty results, not an error.
func (f *Flat) Search(query []float32, k int) ([]int, []float32, error) {
	if len(f.vectors) == 0 || k <= 0 {
		return nil, nil, nil
	}
	if len(query) != f.dim {
		return nil, nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), f.dim)
	}
	if k > len(f.vectors) {
		k = len(f.vectors)
	}

	distances := make([]float32, len(f.vectors))
	for i, v := range f.vectors {
		var sum float32
		for j := range v {
			d := v[j] - query[j]
			sum += d * d
		}
		distances[i] = sum
	}

	order := make([]int, len(f.vectors))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		if distances[order[a]] != distances[order[b]] {
			return distances[order[a]] < distances[order[b]]
		}
		return order[a] < order[b]
	})

	positions := make([]int, k)
	dists := make([]float32, k)
	for i := 0; i < k; i++ {
		positions[i] = order[i]
		dists[i] = distances[order[i]]
	}
	return positions, dists, nil
}

const fileMagic = uint32(0x52484631) // "RHF1"

// Save writes the index to a durable binary file. A reloaded index returns
// identical results for the same queries.
func (f *Flat) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	header := []any{fileMagic, uint32(f.dim), uint64(len(f.vectors))}
	for _, h := range header {
		if err := binary.Write(w, binary.LittleEndian, h); err != nil {
			return fmt.Errorf("failed to write index header: %w", err)
		}
	}
	for _, v := range f.vectors {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("failed to write index vectors: %w", err)
		}
	}
	return w.Flush()
}

// Load reads an index previously written by Save.
func Load(path string) (*Flat, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}
	defer file.Close()

	r := bufio.NewReader(file)
	var magic, dim uint32
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, fmt.Errorf("failed to read index header: %w", err)
	}
	if magic != fileMagic {
		return nil, fmt.Errorf("not an index file: %s", path)
	}
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("failed to read index header: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("failed to read index header: %w", err)
	}

	// The header's count must agree with the file size before anything is
	// allocated from it; a corrupt header must not drive the allocation.
	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	const headerSize = 16
	payload := info.Size() - headerSize
	vectorBytes := int64(dim) * 4
	if payload < 0 || vectorBytes <= 0 || payload%vectorBytes != 0 || uint64(payload/vectorBytes) != count {
		return nil, fmt.Errorf("index file %s is truncated or corrupt", path)
	}

	f, err := NewFlat(int(dim))
	if err != nil {
		return nil, err
	}
	f.vectors = make([][]float32, count)
	for i := range f.vectors {
		v := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("failed to read index vectors: %w", err)
		}
		f.vectors[i] = v
	}
	return f, nil
}

// Vector returns the stored vector at position, used when rebuilding a
// subset index over filtered entries.
func (f *Flat) Vector(position int) ([]float32, error) {
	if position < 0 || position >= len(f.vectors) {
		return nil, fmt.Errorf("position %d out of range", position)
	}
	return f.vectors[position], nil
}
