package segmenter

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"log"
	"path/filepath"
	"strings"

	"github.com/reghealth/navigator/internal/models"
	"github.com/reghealth/navigator/pkg/metadata"
	"github.com/reghealth/navigator/pkg/regxml"
)

type SegmenterConfig struct {
	// ChunkWords is the running word count at which a buffer closes into a chunk.
	ChunkWords int
	// OverlapSentences is how many trailing sentences of a closed chunk are
	// carried into the next one. Zero takes the default of one; a negative
	// value disables overlap.
	OverlapSentences int
	// OnDocument, if set, is called after each document is segmented.
	OnDocument func(path string, chunks int)
}

type Segmenter struct {
	config SegmenterConfig
}

func NewWithConfig(config SegmenterConfig) Segmenter {
	if config.ChunkWords == 0 {
		config.ChunkWords = 500
	}
	if config.OverlapSentences == 0 {
		config.OverlapSentences = 1
	}
	if config.OverlapSentences < 0 {
		config.OverlapSentences = 0
	}

	return Segmenter{config: config}
}

// ChunkDocument walks a parsed rule document in pre-order and cuts it into
// overlapping chunks. HD elements maintain a section-path stack of at most
// three entries; P elements accumulate text until the word threshold is
// reached. A document with no paragraph content yields no chunks.
func (s *Segmenter) ChunkDocument(root *regxml.Node, meta models.RuleMetadata) []models.Chunk {
	var chunks []models.Chunk
	var sectionStack []string
	var buffer []string
	var overlap []string
	wordCount := 0
	chunkIndex := 0

	closeChunk := func() {
		text := strings.Join(buffer, " ")
		if len(overlap) > 0 {
			text = strings.Join(overlap, " ") + " " + text
		}
		sum := sha256.Sum256([]byte(text))
		chunks = append(chunks, models.Chunk{
			Text:          text,
			SectionHeader: strings.Join(sectionStack, " > "),
			ChunkIndex:    chunkIndex,
			Hash:          hex.EncodeToString(sum[:]),
			Metadata:      meta.Clone(),
		})

		sentences := strings.Split(text, ". ")
		keep := s.config.OverlapSentences
		if keep > len(sentences) {
			keep = len(sentences)
		}
		overlap = sentences[len(sentences)-keep:]
		buffer = nil
		wordCount = 0
		chunkIndex++
	}

	root.Walk(func(n *regxml.Node) {
		switch n.Tag {
		case "HD":
			text := regxml.CleanText(n.Text)
			if text == "" {
				return
			}
			switch {
			case strings.HasPrefix(n.Source, "HD1"):
				sectionStack = []string{text}
			case strings.HasPrefix(n.Source, "HD2"):
				sectionStack = replaceFrom(sectionStack, 1, text)
			case strings.HasPrefix(n.Source, "HD3"):
				sectionStack = replaceFrom(sectionStack, 2, text)
			default:
				sectionStack = []string{text}
			}
		case "P":
			para := regxml.CleanText(n.Text)
			if para == "" {
				return
			}
			buffer = append(buffer, para)
			wordCount += len(strings.Fields(para))
			if wordCount >= s.config.ChunkWords {
				closeChunk()
			}
		}
	})

	if len(buffer) > 0 {
		closeChunk()
	}

	return chunks
}

// replaceFrom keeps at most the first depth entries of the stack and appends
// the new heading after them.
func replaceFrom(stack []string, depth int, text string) []string {
	if depth > len(stack) {
		depth = len(stack)
	}
	out := make([]string, 0, depth+1)
	out = append(out, stack[:depth]...)
	return append(out, text)
}

// FileError records one document that failed to parse during a batch run.
type FileError struct {
	Path string
	Err  error
}

// BatchResult summarizes one ingestion pass over a directory tree.
type BatchResult struct {
	Chunks    []models.Chunk
	Processed []string
	Failed    []FileError
}

// ProcessDir segments every *.xml document under root. A document that fails
// to parse is logged and skipped; it never aborts the rest of the batch.
func (s *Segmenter) ProcessDir(root string) (BatchResult, error) {
	var result BatchResult

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".xml") {
			return nil
		}

		doc, parseErr := regxml.ParseFile(path)
		if parseErr != nil {
			log.Printf("skipping %s: %v", path, parseErr)
			result.Failed = append(result.Failed, FileError{Path: path, Err: parseErr})
			return nil
		}

		meta := metadata.Merge(metadata.InferFromFilename(path), metadata.FromDocument(doc))
		if rel, relErr := filepath.Rel(root, path); relErr == nil {
			meta.Subfolder = filepath.Dir(rel)
		}
		meta.FullPath = path

		chunks := s.ChunkDocument(doc, meta)
		result.Chunks = append(result.Chunks, chunks...)
		result.Processed = append(result.Processed, path)

		if s.config.OnDocument != nil {
			s.config.OnDocument(path, len(chunks))
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	return result, nil
}
