package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/scrypster/mlkg/internal/kg"
	"github.com/scrypster/mlkg/internal/sparql"
	"github.com/scrypster/mlkg/pkg/types"
)

// Executor runs SPARQL SELECT queries against a knowledge graph. Execute
// returns native values, Run keeps the RDF terms.
type Executor interface {
	Execute(ctx context.Context, query string) ([]Row, error)
	Run(ctx context.Context, query string) (*sparql.Result, error)
	TripleCount(ctx context.Context) (int, error)
}

// GraphStats summarizes the served graph.
type GraphStats struct {
	TotalTriples   int `json:"total_triples"`
	TotalEntities  int `json:"total_entities"`
	TotalRelations int `json:"total_relations"`
}

// LocalExecutor evaluates queries over a graph held in memory.
type LocalExecutor struct {
	graph *kg.Graph
	path  string
}

// NewLocalExecutor loads the graph file at path once. A missing file is
// reported as ErrGraphNotFound.
func NewLocalExecutor(path string) (*LocalExecutor, error) {
	start := time.Now()
	g, err := kg.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrGraphNotFound, path)
		}
		return nil, fmt.Errorf("executor: failed to load %s: %w", path, err)
	}
	log.Printf("executor: loaded %d triples from %s in %v", g.Len(), path, time.Since(start).Round(time.Millisecond))
	return &LocalExecutor{graph: g, path: path}, nil
}

// NewGraphExecutor serves an already built graph.
func NewGraphExecutor(g *kg.Graph) *LocalExecutor {
	return &LocalExecutor{graph: g}
}

// Graph returns the served graph.
func (e *LocalExecutor) Graph() *kg.Graph { return e.graph }

// Execute runs query and converts every row to native values.
func (e *LocalExecutor) Execute(ctx context.Context, query string) ([]Row, error) {
	res, err := e.Run(ctx, query)
	if err != nil {
		return nil, err
	}
	return toRows(res), nil
}

// Run runs query and keeps the RDF terms.
func (e *LocalExecutor) Run(ctx context.Context, query string) (*sparql.Result, error) {
	res, err := sparql.Run(ctx, e.graph, query)
	if err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}
	log.Printf("executor: query returned %d rows", len(res.Rows))
	return res, nil
}

// TripleCount returns the number of triples in the graph.
func (e *LocalExecutor) TripleCount(context.Context) (int, error) {
	return e.graph.Len(), nil
}

var (
	_ Executor = (*LocalExecutor)(nil)
	_ Executor = (*RemoteExecutor)(nil)
)

func toRows(res *sparql.Result) []Row {
	native := res.Native()
	rows := make([]Row, len(native))
	for i, r := range native {
		rows[i] = Row(r)
	}
	return rows
}

// RemoteExecutor sends queries to a SPARQL 1.1 protocol endpoint.
type RemoteExecutor struct {
	endpoint   string
	httpClient *http.Client
}

// NewRemoteExecutor targets endpoint, the full query URL of a dataset.
func NewRemoteExecutor(endpoint string, timeout time.Duration) *RemoteExecutor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteExecutor{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Execute posts query form-encoded and decodes the JSON results.
func (e *RemoteExecutor) Execute(ctx context.Context, query string) ([]Row, error) {
	res, err := e.Run(ctx, query)
	if err != nil {
		return nil, err
	}
	return toRows(res), nil
}

// Run posts query and keeps the RDF terms.
func (e *RemoteExecutor) Run(ctx context.Context, query string) (*sparql.Result, error) {
	data := url.Values{}
	data.Set("query", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("executor: failed to create query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", sparql.ContentTypeJSON)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executor: failed to execute query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("executor: query failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	res, err := sparql.ReadJSON(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}
	log.Printf("executor: remote query returned %d rows", len(res.Rows))
	return res, nil
}

// TripleCount asks the endpoint for COUNT(*) over all triples.
func (e *RemoteExecutor) TripleCount(ctx context.Context) (int, error) {
	rows, err := e.Execute(ctx, `SELECT (COUNT(*) AS ?count) WHERE { ?s ?p ?o }`)
	if err != nil {
		return 0, err
	}
	return countOf(rows), nil
}

func countOf(rows []Row) int {
	if len(rows) == 0 {
		return 0
	}
	switch v := rows[0]["count"].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		var n int
		_, _ = fmt.Sscanf(v, "%d", &n)
		return n
	}
	return 0
}

// Explorer provides the canned lookups on top of an Executor.
type Explorer struct {
	exec      Executor
	templates *Templates
}

// NewExplorer pairs an executor with the templates of its graph.
func NewExplorer(exec Executor, templates *Templates) *Explorer {
	return &Explorer{exec: exec, templates: templates}
}

// EntityInfo returns every (property, value) of the named entity. The name
// may be a canonical name or an entity token.
func (x *Explorer) EntityInfo(ctx context.Context, name string) ([]Row, error) {
	return x.exec.Execute(ctx, x.templates.EntityInfo(kg.NormalizeName(name)))
}

// RelatedEntities returns neighbours of the entity in both directions,
// restricted to one relation when relation is not empty. The relation must
// be a vocabulary predicate, else ErrUnknownRelation.
func (x *Explorer) RelatedEntities(ctx context.Context, name, relation string) ([]Row, error) {
	if relation != "" {
		canonical, ok := types.LookupPredicate(relation)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRelation, relation)
		}
		relation = canonical
	}
	return x.exec.Execute(ctx, x.templates.Related(kg.NormalizeName(name), relation))
}

// EntityRelations returns the relation-namespace edges of the entity.
func (x *Explorer) EntityRelations(ctx context.Context, name string) ([]Row, error) {
	return x.exec.Execute(ctx, x.templates.EntityRelations(kg.NormalizeName(name)))
}

// Stats counts triples, entities and reified relations.
func (x *Explorer) Stats(ctx context.Context) (GraphStats, error) {
	var stats GraphStats
	triples, err := x.exec.TripleCount(ctx)
	if err != nil {
		return stats, err
	}
	stats.TotalTriples = triples

	rows, err := x.exec.Execute(ctx, x.templates.EntityCount())
	if err != nil {
		return stats, err
	}
	stats.TotalEntities = countOf(rows)

	rows, err = x.exec.Execute(ctx, x.templates.RelationCount())
	if err != nil {
		return stats, err
	}
	stats.TotalRelations = countOf(rows)
	return stats, nil
}
