package types

// Chunk is one unit of source text produced by the upstream chunker.
type Chunk struct {
	ChunkID     string `json:"chunk_id"`
	Content     string `json:"content"`
	SourceBook  string `json:"source_book"`
	ChunkNumber int    `json:"chunk_number"`
	WordCount   int    `json:"word_count"`
}
