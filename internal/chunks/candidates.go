package chunks

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/scrypster/mlkg/pkg/types"
)

// candidateFile is the on-disk shape written by the upstream extraction stage.
type candidateFile struct {
	EntitiesByChunk map[string][]types.EntityCandidate `json:"entities_by_chunk"`
}

// LoadCandidates reads entity candidates keyed by chunk id. Both the
// {"entities_by_chunk": {...}} envelope and a flat JSON array are accepted.
// Candidates are returned grouped by chunk id in sorted order; candidates
// missing a chunk id inherit the key they were filed under.
func LoadCandidates(path string) ([]types.EntityCandidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("chunks: candidate file not found: %w", err)
	}

	var flat []types.EntityCandidate
	if err := json.Unmarshal(data, &flat); err == nil {
		log.Printf("chunks: loaded %d entity candidates from %s", len(flat), path)
		return flat, nil
	}

	var file candidateFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("chunks: parse %s: %w", path, err)
	}

	ids := make([]string, 0, len(file.EntitiesByChunk))
	for id := range file.EntitiesByChunk {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []types.EntityCandidate
	for _, id := range ids {
		for _, c := range file.EntitiesByChunk[id] {
			if c.ChunkID == "" {
				c.ChunkID = id
			}
			out = append(out, c)
		}
	}
	log.Printf("chunks: loaded %d entity candidates across %d chunks from %s", len(out), len(ids), path)
	return out, nil
}
