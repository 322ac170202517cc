package query

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/scrypster/mlkg/internal/metrics"
	"github.com/scrypster/mlkg/internal/sparql"
)

// Answer is the full outcome of one question.
type Answer struct {
	Question string            `json:"question"`
	Intent   QueryIntent       `json:"intent"`
	SPARQL   string            `json:"sparql,omitempty"`
	Response FormattedResponse `json:"response"`
	Enhanced *EnhancedResponse `json:"enhanced,omitempty"`
	Duration time.Duration     `json:"duration_ns"`
}

// Text returns the prose answer when there is one, else the formatted one.
func (a Answer) Text() string {
	if a.Enhanced != nil {
		return a.Enhanced.NaturalAnswer
	}
	return a.Response.Answer
}

// Service ties the processor, executor, formatter and optional enhancer
// together.
type Service struct {
	processor *Processor
	exec      Executor
	explorer  *Explorer
	formatter *Formatter
	enhancer  *Enhancer
	metrics   *metrics.Metrics
}

// NewService builds the question-answering service. enhancer and m may be
// nil.
func NewService(processor *Processor, exec Executor, enhancer *Enhancer, m *metrics.Metrics) *Service {
	return &Service{
		processor: processor,
		exec:      exec,
		explorer:  NewExplorer(exec, processor.templates),
		formatter: NewFormatter(),
		enhancer:  enhancer,
		metrics:   m,
	}
}

// Explorer exposes the entity lookups of the served graph.
func (s *Service) Explorer() *Explorer { return s.explorer }

// Processor returns the question processor.
func (s *Service) Processor() *Processor { return s.processor }

// Ask answers question. It never fails: template and execution errors come
// back as zero-confidence responses.
func (s *Service) Ask(ctx context.Context, question string) Answer {
	start := time.Now()
	question = strings.TrimSpace(question)
	answer := Answer{Question: question}

	intent := s.processor.Process(question)
	answer.Intent = intent

	query, err := s.processor.Generate(intent)
	if err == nil {
		answer.SPARQL = query
		var rows []Row
		rows, err = s.exec.Execute(ctx, query)
		if err == nil {
			answer.Response = s.formatter.Format(rows, intent.QueryType, question, intent.Entities)
		}
	}
	if err != nil {
		log.Printf("query: failed to answer %q: %v", question, err)
		answer.Response = s.formatter.Error(err, nil)
	}

	if s.enhancer != nil && err == nil {
		enhanced := s.enhancer.Enhance(ctx, answer.Response, question, intent.QueryType)
		answer.Enhanced = &enhanced
	}

	answer.Duration = time.Since(start)
	s.metrics.Query(string(intent.QueryType), err, answer.Duration)
	log.Printf("query: answered %s in %v (confidence %.2f)", intent.QueryType, answer.Duration.Round(time.Millisecond), answer.Response.Confidence)
	return answer
}

// SPARQL runs a raw query against the served graph.
func (s *Service) SPARQL(ctx context.Context, query string) (*sparql.Result, error) {
	start := time.Now()
	res, err := s.exec.Run(ctx, query)
	s.metrics.Query("sparql", err, time.Since(start))
	return res, err
}

// Stats summarizes the served graph.
func (s *Service) Stats(ctx context.Context) (GraphStats, error) {
	return s.explorer.Stats(ctx)
}
