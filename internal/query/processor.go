package query

import (
	"log"
	"regexp"
	"strings"
)

const (
	matchedConfidence  = 0.8
	fallbackConfidence = 0.3
	fallbackEntity     = "unknown"
)

type extractor func(groups []string) []string

type rule struct {
	queryType QueryType
	patterns  []*regexp.Regexp
	extract   extractor
}

// ProcessorConfig sets the row limits of the listing intents.
type ProcessorConfig struct {
	ListLimit    int
	SimilarLimit int
}

// Processor maps questions onto intents by ordered pattern matching. The
// first pattern whose extractor yields a non-empty entity wins.
type Processor struct {
	rules     []rule
	templates *Templates
	cfg       ProcessorConfig
}

// NewProcessor builds a processor that renders SPARQL with templates.
func NewProcessor(templates *Templates, cfg ProcessorConfig) *Processor {
	if cfg.ListLimit < 1 {
		cfg.ListLimit = DefaultListLimit
	}
	if cfg.SimilarLimit < 1 {
		cfg.SimilarLimit = DefaultSimilarLimit
	}
	return &Processor{rules: defaultRules(), templates: templates, cfg: cfg}
}

const typeWords = `(algoritmos?|algorithms?|conceitos?|concepts?|métricas?|metrics?)`

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// defaultRules are the bilingual (Portuguese and English) question shapes in
// priority order.
func defaultRules() []rule {
	return []rule{
		{WhatIs, compile(
			`(?:o que é|what is|define|definição de|conceito de)\s+([a-zA-Z_\s]+)`,
			`([a-zA-Z_\s]+)\s+(?:é o que|é|significa o que)`,
			`(?:explique|explain)\s+([a-zA-Z_\s]+)`,
		), singleEntity},
		{WhatUses, compile(
			`(?:o que usa|what uses|quais?.*usam?|algoritmos? que usam?)\s+([a-zA-Z_\s]+)`,
			`(?:quais?|what).*(?:implementam?|implement)\s+([a-zA-Z_\s]+)`,
			`(?:find|encontre).*(?:que usa|that uses?)\s+([a-zA-Z_\s]+)`,
		), singleEntity},
		{WhatIsTypeOf, compile(
			`([a-zA-Z_\s]+)\s+(?:é um tipo de que|is a type of what|é uma subclasse de)`,
			`(?:que tipo de|what type of).*(?:é|is)\s+([a-zA-Z_\s]+)`,
			`([a-zA-Z_\s]+)\s+(?:extends|estende|herda de)`,
		), singleEntity},
		{WhoCreated, compile(
			`(?:quem criou|who created|quem desenvolveu|who developed)\s+([a-zA-Z_\s]+)`,
			`(?:autor de|author of|creator of)\s+([a-zA-Z_\s]+)`,
			`([a-zA-Z_\s]+)\s+(?:foi criado por|was created by|foi desenvolvido por)`,
		), singleEntity},
		{HowRelated, compile(
			`(?:como|how)\s+([a-zA-Z_\s]+)\s+(?:está relacionado com|is related to|se relaciona com)\s+([a-zA-Z_\s]+)`,
			`(?:relação entre|relationship between)\s+([a-zA-Z_\s]+)\s+(?:e|and)\s+([a-zA-Z_\s]+)`,
		), twoEntities},
		{ListByType, compile(
			`(?:liste|list|quais são|what are).*?`+typeWords,
			`(?:todos os|all|all the)\s+`+typeWords,
			`(?:show|mostre).*?`+typeWords,
		), typeEntity},
		{FindSimilar, compile(
			`(?:encontre|find|busque).*(?:similar|parecido|semelhante).*(?:a|to|with)\s+([a-zA-Z_\s]+)`,
			`(?:conceitos?|algorithms?).*(?:similar|parecido|semelhante).*(?:a|to)\s+([a-zA-Z_\s]+)`,
		), singleEntity},
	}
}

// Process interprets question. It never fails: an unmatched question falls
// back to WHAT_IS on its last word with low confidence.
func (p *Processor) Process(question string) QueryIntent {
	q := strings.TrimSpace(strings.ToLower(question))

	for _, r := range p.rules {
		for _, re := range r.patterns {
			m := re.FindStringSubmatch(q)
			if m == nil {
				continue
			}
			entities := r.extract(m[1:])
			if len(entities) == 0 {
				continue
			}
			log.Printf("query: matched %s, entities %v", r.queryType, entities)
			return QueryIntent{QueryType: r.queryType, Entities: entities, Confidence: matchedConfidence, RawQuestion: q}
		}
	}

	entity := fallbackEntity
	if fields := strings.Fields(q); len(fields) > 0 {
		if token := NormalizeEntity(fields[len(fields)-1]); token != "" {
			entity = token
		}
	}
	log.Printf("query: no pattern matched %q, falling back to what_is %q", q, entity)
	return QueryIntent{QueryType: WhatIs, Entities: []string{entity}, Confidence: fallbackConfidence, RawQuestion: q}
}

// Generate renders the SPARQL of intent.
func (p *Processor) Generate(intent QueryIntent) (string, error) {
	return p.templates.ForIntent(intent, p.cfg.ListLimit, p.cfg.SimilarLimit)
}

// ProcessAndGenerate runs Process then Generate.
func (p *Processor) ProcessAndGenerate(question string) (QueryIntent, string, error) {
	intent := p.Process(question)
	sparql, err := p.Generate(intent)
	return intent, sparql, err
}

var (
	stopWords = map[string]bool{
		"o": true, "a": true, "os": true, "as": true,
		"de": true, "da": true, "do": true, "das": true, "dos": true,
		"the": true, "of": true, "for": true,
	}
	nonToken = regexp.MustCompile(`[^a-z0-9_]`)

	typeAliases = map[string]string{
		"algoritmos": "algorithm", "algoritmo": "algorithm", "algorithms": "algorithm", "algorithm": "algorithm",
		"conceitos": "concept", "conceito": "concept", "concepts": "concept", "concept": "concept",
		"métricas": "metric", "métrica": "metric", "metrics": "metric", "metric": "metric",
	}
)

// NormalizeEntity turns question text into an entity token: stop words are
// dropped, the rest lowercased and joined with underscores, and anything
// outside [a-z0-9_] removed. "support vector machine" and the URI token of
// "Support Vector Machine" are the same.
func NormalizeEntity(text string) string {
	var kept []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if !stopWords[w] {
			kept = append(kept, w)
		}
	}
	return nonToken.ReplaceAllString(strings.Join(kept, "_"), "")
}

func singleEntity(groups []string) []string {
	if len(groups) < 1 {
		return nil
	}
	if e := NormalizeEntity(groups[0]); e != "" {
		return []string{e}
	}
	return nil
}

func twoEntities(groups []string) []string {
	if len(groups) < 2 {
		return nil
	}
	a, b := NormalizeEntity(groups[0]), NormalizeEntity(groups[1])
	if a == "" || b == "" {
		return nil
	}
	return []string{a, b}
}

func typeEntity(groups []string) []string {
	if len(groups) < 1 {
		return nil
	}
	word := strings.ToLower(strings.TrimSpace(groups[0]))
	if t, ok := typeAliases[word]; ok {
		return []string{t}
	}
	if word == "" {
		return nil
	}
	return []string{word}
}
