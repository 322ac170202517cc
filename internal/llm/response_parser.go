package llm

import (
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
)

// ParseMode records which stage of the two-stage parser produced a result.
type ParseMode int

const (
	// ParseFailed means neither strict JSON nor the fallback scraper found anything.
	ParseFailed ParseMode = iota
	// ParseJSON means the response decoded as JSON after cleanup.
	ParseJSON
	// ParseFallback means JSON decoding failed and the line scraper recovered records.
	ParseFallback
)

func (m ParseMode) String() string {
	switch m {
	case ParseJSON:
		return "json"
	case ParseFallback:
		return "fallback"
	default:
		return "failed"
	}
}

// NormalizedEntityResponse is one entity as emitted by the normalization prompt.
type NormalizedEntityResponse struct {
	CanonicalName string      `json:"canonical_name"`
	Type          string      `json:"type"`
	Aliases       flexStrings `json:"aliases"`
}

// NormalizationResponse is the envelope of the normalization prompt.
type NormalizationResponse struct {
	NormalizedEntities []NormalizedEntityResponse `json:"normalized_entities"`
}

// RelationResponse is one relation as emitted by the extraction prompt.
type RelationResponse struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
	Context   string `json:"context"`
}

// RelationExtractionResponse is the envelope of the extraction prompt.
type RelationExtractionResponse struct {
	Relations []RelationResponse `json:"relations"`
}

// flexStrings accepts a JSON array of strings, a single string or null.
// Non-string array members are dropped.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single != "" {
			*f = flexStrings{single}
		}
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(flexStrings, 0, len(raw))
	for _, r := range raw {
		var s string
		if json.Unmarshal(r, &s) == nil && s != "" {
			out = append(out, s)
		}
	}
	*f = out
	return nil
}

var (
	fencePattern         = regexp.MustCompile("```(?:json|JSON)?")
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// ExtractJSON locates the JSON object inside a model response that may carry
// code fences or prose around it. It prefers the first balanced object and
// falls back to OuterJSON when braces never balance. Returns "" when the
// text holds no '{'.
func ExtractJSON(text string) string {
	text = stripFences(text)
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	if end, ok := balancedEnd(text, start); ok {
		return text[start:end]
	}
	return OuterJSON(text)
}

// balancedEnd returns the index just past the object opening at start,
// skipping braces inside strings. ok is false when it never closes.
func balancedEnd(text string, start int) (end int, ok bool) {
	braceCount := 0
	inString := false
	escape := false

	for i := start; i < len(text); i++ {
		char := text[i]

		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if !inString {
			switch char {
			case '{':
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 {
					return i + 1, true
				}
			}
		}
	}
	return 0, false
}

// jsonCandidates lists, in order, every top-level balanced object of text
// followed by the outermost span.
func jsonCandidates(text string) []string {
	text = stripFences(text)
	var out []string
	for from := 0; from < len(text); {
		i := strings.Index(text[from:], "{")
		if i == -1 {
			break
		}
		start := from + i
		end, ok := balancedEnd(text, start)
		if !ok {
			break
		}
		out = append(out, text[start:end])
		from = end
	}
	if outer := OuterJSON(text); outer != "" && (len(out) == 0 || out[len(out)-1] != outer) {
		out = append(out, outer)
	}
	return out
}

// OuterJSON returns the span from the first '{' to the last '}', or to the
// end of the text when no '}' follows. Returns "" when there is no '{'.
func OuterJSON(text string) string {
	text = stripFences(text)
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}
	end := strings.LastIndex(text, "}")
	if end < start {
		return text[start:]
	}
	return text[start : end+1]
}

func stripFences(text string) string {
	return strings.TrimSpace(fencePattern.ReplaceAllString(text, ""))
}

// RepairJSON applies the cleanups small models most often need: raw line
// breaks become spaces and trailing commas before '}' or ']' are removed.
func RepairJSON(span string) string {
	span = strings.ReplaceAll(span, "\r", "")
	span = strings.ReplaceAll(span, "\n", " ")
	return trailingCommaPattern.ReplaceAllString(span, "$1")
}

// decodeLenient runs the strict stage: extract, repair, unmarshal. Each
// top-level object is tried in turn, then the outermost span. The first
// decoded value for which found reports true wins; failing that, the first
// value that decoded at all.
func decodeLenient[T any](text string, found func(*T) bool) (T, error) {
	var zero T
	candidates := jsonCandidates(text)
	if len(candidates) == 0 {
		return zero, fmt.Errorf("no JSON object in response")
	}

	var first *T
	var firstErr error
	for _, span := range candidates {
		var v T
		if err := json.Unmarshal([]byte(RepairJSON(span)), &v); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if found(&v) {
			return v, nil
		}
		if first == nil {
			first = &v
		}
	}
	if first != nil {
		return *first, nil
	}
	return zero, firstErr
}// ScrapeRecords is the fallback stage. It walks the text line by line looking
// for `"key": "value"` pairs and assembles a record each time all keys have
// been seen in order. Seeing the first key again starts a new record.
func ScrapeRecords(text string, keys ...string) []map[string]string {
	if len(keys) == 0 {
		return nil
	}
	patterns := make([]*regexp.Regexp, len(keys))
	for i, k := range keys {
		patterns[i] = regexp.MustCompile(`"` + regexp.QuoteMeta(k) + `"\s*:\s*"([^"]+)"`)
	}

	type hit struct {
		pos   int
		key   int
		value string
	}

	var records []map[string]string
	current := map[string]string{}
	for _, line := range strings.Split(text, "\n") {
		var hits []hit
		for i, p := range patterns {
			for _, m := range p.FindAllStringSubmatchIndex(line, -1) {
				hits = append(hits, hit{pos: m[0], key: i, value: line[m[2]:m[3]]})
			}
		}
		sort.Slice(hits, func(a, b int) bool { return hits[a].pos < hits[b].pos })

		for _, h := range hits {
			switch {
			case h.key == 0:
				current = map[string]string{keys[0]: h.value}
			case len(current) == h.key:
				current[keys[h.key]] = h.value
			default:
				continue
			}
			if len(current) == len(keys) {
				records = append(records, current)
				current = map[string]string{}
			}
		}
	}
	return records
}

// ParseNormalizationResponse decodes a normalization answer. On JSON failure
// it scrapes canonical_name/type pairs; scraped entities have no aliases.
func ParseNormalizationResponse(text string) ([]NormalizedEntityResponse, ParseMode) {
	resp, err := decodeLenient(text, func(r *NormalizationResponse) bool { return len(r.NormalizedEntities) > 0 })
	if err == nil {
		return resp.NormalizedEntities, ParseJSON
	}
	log.Printf("llm: normalization response is not valid JSON (%v), trying fallback scraper", err)

	records := ScrapeRecords(text, "canonical_name", "type")
	if len(records) == 0 {
		log.Printf("llm: fallback scraper found no entities in response: %.200s", text)
		return nil, ParseFailed
	}
	out := make([]NormalizedEntityResponse, len(records))
	for i, r := range records {
		out[i] = NormalizedEntityResponse{CanonicalName: r["canonical_name"], Type: r["type"]}
	}
	log.Printf("llm: fallback scraper recovered %d entities", len(out))
	return out, ParseFallback
}

// ParseRelationResponse decodes a relation extraction answer. On JSON failure
// it scrapes subject/predicate/object triples with an empty context.
func ParseRelationResponse(text string) ([]RelationResponse, ParseMode) {
	resp, err := decodeLenient(text, func(r *RelationExtractionResponse) bool { return len(r.Relations) > 0 })
	if err == nil {
		return resp.Relations, ParseJSON
	}
	log.Printf("llm: relation response is not valid JSON (%v), trying fallback scraper", err)

	records := ScrapeRecords(text, "subject", "predicate", "object")
	if len(records) == 0 {
		return nil, ParseFailed
	}
	out := make([]RelationResponse, len(records))
	for i, r := range records {
		out[i] = RelationResponse{Subject: r["subject"], Predicate: r["predicate"], Object: r["object"]}
	}
	log.Printf("llm: fallback scraper recovered %d relations", len(out))
	return out, ParseFallback
}
