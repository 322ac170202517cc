package chunks

import (
	"sort"

	"github.com/scrypster/mlkg/pkg/types"
)

// Index keeps loaded chunks in load order with lookup by id and book.
type Index struct {
	chunks []types.Chunk
	byID   map[string]int
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{byID: make(map[string]int)}
}

// Add appends chunks. A chunk whose id is already present replaces the old one.
func (idx *Index) Add(chunks ...types.Chunk) {
	for _, c := range chunks {
		if pos, ok := idx.byID[c.ChunkID]; ok {
			idx.chunks[pos] = c
			continue
		}
		idx.byID[c.ChunkID] = len(idx.chunks)
		idx.chunks = append(idx.chunks, c)
	}
}

// Get returns the chunk with the given id.
func (idx *Index) Get(id string) (types.Chunk, bool) {
	pos, ok := idx.byID[id]
	if !ok {
		return types.Chunk{}, false
	}
	return idx.chunks[pos], true
}

// All returns every chunk in load order.
func (idx *Index) All() []types.Chunk {
	return idx.chunks
}

// Len returns the number of chunks.
func (idx *Index) Len() int {
	return len(idx.chunks)
}

// ByBook returns the chunks of one book in load order.
func (idx *Index) ByBook(book string) []types.Chunk {
	var out []types.Chunk
	for _, c := range idx.chunks {
		if c.SourceBook == book {
			out = append(out, c)
		}
	}
	return out
}

// BookStats summarizes one book.
type BookStats struct {
	Chunks           int     `json:"chunks"`
	Words            int     `json:"words"`
	AvgWordsPerChunk float64 `json:"avg_words_per_chunk"`
}

// Stats summarizes the whole index.
type Stats struct {
	TotalChunks      int                  `json:"total_chunks"`
	TotalWords       int                  `json:"total_words"`
	TotalBooks       int                  `json:"total_books"`
	AvgWordsPerChunk float64              `json:"avg_words_per_chunk"`
	Books            []string             `json:"books"`
	BookStatistics   map[string]BookStats `json:"book_statistics"`
}

// Stats computes corpus statistics.
func (idx *Index) Stats() Stats {
	s := Stats{BookStatistics: make(map[string]BookStats)}
	for _, c := range idx.chunks {
		b := s.BookStatistics[c.SourceBook]
		b.Chunks++
		b.Words += c.WordCount
		s.BookStatistics[c.SourceBook] = b
		s.TotalChunks++
		s.TotalWords += c.WordCount
	}
	for name, b := range s.BookStatistics {
		b.AvgWordsPerChunk = float64(b.Words) / float64(b.Chunks)
		s.BookStatistics[name] = b
		s.Books = append(s.Books, name)
	}
	sort.Strings(s.Books)
	s.TotalBooks = len(s.Books)
	if s.TotalChunks > 0 {
		s.AvgWordsPerChunk = float64(s.TotalWords) / float64(s.TotalChunks)
	}
	return s
}
