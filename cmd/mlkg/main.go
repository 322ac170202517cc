// Command mlkg builds and queries the machine learning knowledge graph.
//
// The pipeline runs in stages, each persisting its output in the knowledge
// store: normalize (entity candidates to canonical entities), extract
// (relations between entities per chunk) and build (RDF graph file). The
// query side answers questions against the graph file or a remote SPARQL
// endpoint, from the command line or over HTTP.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scrypster/mlkg/internal/config"
	"github.com/scrypster/mlkg/internal/kg"
	"github.com/scrypster/mlkg/internal/llm"
	"github.com/scrypster/mlkg/internal/metrics"
	"github.com/scrypster/mlkg/internal/query"
	"github.com/scrypster/mlkg/internal/storage"
	"github.com/scrypster/mlkg/internal/storage/postgres"
	"github.com/scrypster/mlkg/internal/storage/sqlite"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// dbFile is the sqlite database name under the data path.
const dbFile = "mlkg.db"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// app carries state shared by every subcommand.
type app struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:   "mlkg",
		Short: "Build and query a knowledge graph of machine learning textbooks",
		Long: `mlkg turns entity mentions extracted from ML/DL textbooks into an RDF
knowledge graph and answers questions about it.

Pipeline:
  mlkg normalize --candidates entities.json
  mlkg extract --chunks ./chunks
  mlkg build

Querying:
  mlkg query "what is a support vector machine?"
  mlkg sparql 'SELECT ?s WHERE { ?s a ml:algorithm }'
  mlkg serve`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML file overriding environment configuration")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mlkg v%s (%s)\n", version, commit)
		},
	})

	rootCmd.AddCommand(
		a.chunksCmd(),
		a.normalizeCmd(),
		a.extractCmd(),
		a.buildCmd(),
		a.queryCmd(),
		a.sparqlCmd(),
		a.statsCmd(),
		a.serveCmd(),
		a.runsCmd(),
		a.exportCmd(),
		a.importCmd(),
		a.backupCmd(),
	)
	return rootCmd
}

func (a *app) loadConfig() error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFile(a.configPath)
	} else {
		a.cfg, err = config.LoadConfig()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

func (a *app) namespaces() kg.Namespaces {
	return kg.Namespaces{
		Ontology: a.cfg.Graph.OntologyNS,
		Entity:   a.cfg.Graph.EntityNS,
		Relation: a.cfg.Graph.RelationNS,
	}.WithDefaults()
}

// openStore opens the configured storage backend.
func (a *app) openStore() (storage.KnowledgeStore, error) {
	switch a.cfg.Storage.StorageEngine {
	case "postgres":
		return postgres.NewKnowledgeStore(a.cfg.Storage.PostgresDSN)
	default:
		if err := os.MkdirAll(a.cfg.Storage.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return sqlite.NewKnowledgeStore(a.dbPath())
	}
}

// chatModel builds the configured LLM client with its calls counted in m.
func (a *app) chatModel(m *metrics.Metrics) (llm.ChatModel, error) {
	client, err := llm.NewChatModel(a.cfg.LLM)
	if err != nil {
		return nil, err
	}
	client.OnCall(m.LLMCall)
	return client, nil
}

// newService assembles the query service over the remote endpoint when one
// is configured, else over the local graph file. The enhancer is optional:
// an unreachable model only disables it.
func (a *app) newService(ctx context.Context, m *metrics.Metrics) (*query.Service, error) {
	ns := a.namespaces()
	processor := query.NewProcessor(query.NewTemplates(ns), query.ProcessorConfig{
		ListLimit:    a.cfg.Query.ListLimit,
		SimilarLimit: a.cfg.Query.SimilarLimit,
	})

	var exec query.Executor
	if endpoint := a.cfg.Graph.SPARQLEndpoint; endpoint != "" {
		log.Printf("mlkg: querying remote endpoint %s", endpoint)
		exec = query.NewRemoteExecutor(endpoint, 0)
	} else {
		local, err := query.NewLocalExecutor(a.cfg.Graph.Path)
		if err != nil {
			return nil, err
		}
		m.GraphSize(local.Graph().Len())
		exec = local
	}

	var enhancer *query.Enhancer
	if a.cfg.Query.EnhanceResponse {
		model, err := a.chatModel(m)
		if err == nil {
			enhancer, err = query.NewEnhancer(ctx, model)
		}
		if err != nil {
			log.Printf("mlkg: response enhancement disabled: %v", err)
			enhancer = nil
		}
	}
	return query.NewService(processor, exec, enhancer, m), nil
}
