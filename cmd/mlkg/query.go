package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/scrypster/mlkg/internal/metrics"
	"github.com/scrypster/mlkg/internal/server"
	"github.com/scrypster/mlkg/internal/sparql"
)

func (a *app) queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Answer a natural-language question from the knowledge graph",
		Long:  "Answer a question. With no argument or \"-\" the question is read from stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			showSPARQL, _ := cmd.Flags().GetBool("show-sparql")
			asJSON, _ := cmd.Flags().GetBool("json")

			question, err := readArgOrStdin(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			svc, err := a.newService(cmd.Context(), nil)
			if err != nil {
				return err
			}

			answer := svc.Ask(cmd.Context(), question)
			if asJSON {
				return printJSON(cmd.OutOrStdout(), answer)
			}

			out := cmd.OutOrStdout()
			if showSPARQL && answer.SPARQL != "" {
				fmt.Fprintf(out, "%s\n", answer.SPARQL)
			}
			fmt.Fprintln(out, answer.Text())
			fmt.Fprintf(out, "\n[%s, confidence %.2f]\n", answer.Intent.QueryType, answer.Response.Confidence)
			return nil
		},
	}
	cmd.Flags().Bool("show-sparql", false, "Print the generated SPARQL query")
	cmd.Flags().Bool("json", false, "Print the full answer as JSON")
	return cmd
}

func (a *app) sparqlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sparql [query]",
		Short: "Run a SPARQL SELECT query and print application/sparql-results+json",
		Long: `Run a SPARQL query. With no argument or "-" the query is read from stdin.
The ml:, entity:, relation:, rdfs: and rdf: prefixes are predeclared.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := readArgOrStdin(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			svc, err := a.newService(cmd.Context(), nil)
			if err != nil {
				return err
			}
			res, err := svc.SPARQL(cmd.Context(), a.namespaces().SPARQLPrologue()+q)
			if err != nil {
				return err
			}
			return sparql.WriteJSON(cmd.OutOrStdout(), res)
		},
	}
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count triples, entities and relations of the knowledge graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.newService(cmd.Context(), nil)
			if err != nil {
				return err
			}
			stats, err := svc.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the question-answering and SPARQL HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				a.cfg.Server.Port, _ = cmd.Flags().GetInt("port")
			}
			if cmd.Flags().Changed("host") {
				a.cfg.Server.Host, _ = cmd.Flags().GetString("host")
			}
			if a.cfg.Security.SecurityMode != "development" && a.cfg.Security.APIToken == "" {
				log.Printf("mlkg: %s mode without MLKG_API_TOKEN, every /api request will be rejected", a.cfg.Security.SecurityMode)
			}

			ctx := cmd.Context()
			m := metrics.New()
			svc, err := a.newService(ctx, m)
			if err != nil {
				return err
			}

			addr, err := server.Start(ctx, a.cfg, svc, m)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mlkg API running at http://%s\n", addr)

			<-ctx.Done()
			log.Println("mlkg: shutting down")
			return nil
		},
	}
	cmd.Flags().Int("port", 7373, "Listen port (overrides MLKG_PORT)")
	cmd.Flags().String("host", "127.0.0.1", "Listen host (overrides MLKG_HOST)")
	return cmd
}
