// Package chunks loads the chunked textbook corpus and the entity candidates
// extracted from it.
package chunks

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/scrypster/mlkg/pkg/types"
)

// FileSuffix is the suffix shared by every chunk file.
const FileSuffix = "_chunks.txt"

var (
	chunkHeader = regexp.MustCompile(`=== CHUNK \d+ ===`)
	metaRule    = strings.Repeat("-", 50)
)

// knownBooks maps chunk file stems to short book identifiers.
var knownBooks = map[string]string{
	"Bishop-Pattern-Recognition-and-Machine-Learning-2006":                                          "bishop_pattern_recognition",
	"goodfellow2016deep_learning":                                                                    "goodfellow_deep_learning",
	"deep-learning":                                                                                  "deep_learning_book",
	"prince2023udl":                                                                                  "prince_deep_learning",
	"698-machine-learning-the-art-and-science-of-algorithms-that-make-sense-of-data-(www.tawcer.com)": "ml_art_science",
	"Introduction to Machine Learning with Python ( PDFDrive.com )-min":                             "intro_ml_python",
	"Pattern Recognition - Concepts Methods and Applications - J. deSa (Springer, 2001) WW":         "pattern_recognition_concepts",
	"the-science-of-deep-learning-9781108835084-9781108891530_compress":                              "science_deep_learning",
}

// BookName derives the book identifier from a chunk file name.
func BookName(filename string) string {
	stem := strings.TrimSuffix(filepath.Base(filename), FileSuffix)
	if name, ok := knownBooks[stem]; ok {
		return name
	}
	name := strings.ToLower(stem)
	name = strings.ReplaceAll(name, "-", "_")
	return strings.ReplaceAll(name, " ", "_")
}

// LoadDir loads every *_chunks.txt file under dir. Files are read in name
// order so chunk ids are stable across runs.
func LoadDir(dir string) (*Index, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("chunks: directory not found: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("chunks: %s is not a directory", dir)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*"+FileSuffix))
	if err != nil {
		return nil, fmt.Errorf("chunks: glob %s: %w", dir, err)
	}
	sort.Strings(files)
	log.Printf("chunks: found %d chunk files in %s", len(files), dir)

	idx := NewIndex()
	for _, f := range files {
		loaded, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		idx.Add(loaded...)
		log.Printf("chunks: loaded %d chunks from %s", len(loaded), filepath.Base(f))
	}
	log.Printf("chunks: loaded %d chunks from %d books", idx.Len(), len(files))
	return idx, nil
}

// LoadFile reads a single chunk file.
func LoadFile(path string) ([]types.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("chunks: read %s: %w", path, err)
	}
	return Parse(BookName(path), string(data)), nil
}

// Parse splits raw chunk-file text into chunks. Text before the first
// header is ignored; inside a chunk, everything up to a line starting with
// 50 dashes is metadata.
func Parse(book, text string) []types.Chunk {
	parts := chunkHeader.Split(text, -1)

	var out []types.Chunk
	for i, part := range parts {
		if i == 0 {
			continue
		}
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		lines := strings.Split(part, "\n")
		start := 0
		for j, line := range lines {
			if strings.HasPrefix(line, metaRule) {
				start = j + 1
				break
			}
		}
		content := strings.TrimSpace(strings.Join(lines[start:], "\n"))
		if content == "" {
			continue
		}

		out = append(out, types.Chunk{
			ChunkID:     fmt.Sprintf("%s_chunk_%04d", book, i),
			Content:     content,
			SourceBook:  book,
			ChunkNumber: i,
			WordCount:   len(strings.Fields(content)),
		})
	}
	return out
}
