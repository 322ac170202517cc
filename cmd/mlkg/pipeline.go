package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrypster/mlkg/internal/chunks"
	"github.com/scrypster/mlkg/internal/engine"
	"github.com/scrypster/mlkg/internal/kg"
	"github.com/scrypster/mlkg/internal/metrics"
	"github.com/scrypster/mlkg/internal/storage"
)

func (a *app) chunksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chunks",
		Short: "Show statistics of the chunked textbook corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			idx, err := chunks.LoadDir(dir)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), idx.Stats())
		},
	}
	cmd.Flags().String("dir", "./data/chunks", "Directory of *_chunks.txt files")
	return cmd
}

func (a *app) normalizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Normalize entity candidates with the LLM and store them as a new run",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path, _ := cmd.Flags().GetString("candidates")
			note, _ := cmd.Flags().GetString("note")

			candidates, err := chunks.LoadCandidates(path)
			if err != nil {
				return err
			}

			m := metrics.New()
			model, err := a.chatModel(m)
			if err != nil {
				return err
			}
			normalizer, err := engine.NewNormalizer(ctx, model, engine.NormalizerConfig{
				BatchSize: a.cfg.Pipeline.BatchSize,
				Workers:   a.cfg.Pipeline.Workers,
			}, m)
			if err != nil {
				return err
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			entities := normalizer.Normalize(ctx, candidates)

			run := storage.NewRun(storage.StageNormalize, note)
			if err := store.SaveRun(ctx, run); err != nil {
				return err
			}
			if err := store.SaveEntities(ctx, run.ID, entities); err != nil {
				return err
			}
			log.Printf("mlkg: saved %d entities as run %s", len(entities), run.ID)

			return printJSON(cmd.OutOrStdout(), map[string]any{
				"run_id":  run.ID,
				"stats":   normalizer.Stats(),
				"summary": engine.SummarizeEntities(entities),
			})
		},
	}
	cmd.Flags().String("candidates", "./data/entities.json", "Entity candidate file")
	cmd.Flags().String("note", "", "Free-form note stored with the run")
	return cmd
}

func (a *app) extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract relations between normalized entities chunk by chunk",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir, _ := cmd.Flags().GetString("chunks")
			runID, _ := cmd.Flags().GetString("entities-run")
			maxChunks, _ := cmd.Flags().GetInt("max-chunks")
			note, _ := cmd.Flags().GetString("note")

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			entities, err := store.LoadEntities(ctx, runID)
			if err != nil {
				return fmt.Errorf("failed to load normalized entities: %w", err)
			}
			idx, err := chunks.LoadDir(dir)
			if err != nil {
				return err
			}
			chunkEntities := engine.MapEntitiesToChunks(entities)
			log.Printf("mlkg: %d of %d chunks mention at least two entities", len(chunkEntities), idx.Len())

			m := metrics.New()
			model, err := a.chatModel(m)
			if err != nil {
				return err
			}
			extractor, err := engine.NewRelationExtractor(ctx, model, engine.ExtractorConfig{
				ChunkTextLimit: a.cfg.Pipeline.ChunkTextLimit,
				Workers:        a.cfg.Pipeline.Workers,
			}, m)
			if err != nil {
				return err
			}

			relations := extractor.ExtractAll(ctx, idx, chunkEntities, maxChunks)

			run := storage.NewRun(storage.StageExtract, note)
			if err := store.SaveRun(ctx, run); err != nil {
				return err
			}
			if err := store.SaveRelations(ctx, run.ID, relations); err != nil {
				return err
			}
			log.Printf("mlkg: saved %d relations as run %s", len(relations), run.ID)

			return printJSON(cmd.OutOrStdout(), map[string]any{
				"run_id":  run.ID,
				"stats":   extractor.Stats(),
				"summary": engine.SummarizeRelations(relations),
			})
		},
	}
	cmd.Flags().String("chunks", "./data/chunks", "Directory of *_chunks.txt files")
	cmd.Flags().String("entities-run", "", "Normalize run to read (default: latest)")
	cmd.Flags().Int("max-chunks", 0, "Process at most this many chunks (0: all)")
	cmd.Flags().String("note", "", "Free-form note stored with the run")
	return cmd
}

func (a *app) buildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the RDF knowledge graph from stored entities and relations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			entitiesRun, _ := cmd.Flags().GetString("entities-run")
			relationsRun, _ := cmd.Flags().GetString("relations-run")
			output, _ := cmd.Flags().GetString("output")
			extra, _ := cmd.Flags().GetStringSlice("formats")
			if output == "" {
				output = a.cfg.Graph.Path
			}

			formats := make([]kg.Format, 0, len(extra))
			for _, name := range extra {
				f, err := kg.ParseFormat(name)
				if err != nil {
					return err
				}
				formats = append(formats, f)
			}

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			entities, err := store.LoadEntities(ctx, entitiesRun)
			if err != nil {
				return fmt.Errorf("failed to load normalized entities: %w", err)
			}
			relations, err := store.LoadRelations(ctx, relationsRun)
			if err != nil {
				return fmt.Errorf("failed to load relations: %w", err)
			}

			start := time.Now()
			b := kg.NewBuilder(a.namespaces())
			b.AddOntologySchema()
			b.AddEntities(entities)
			b.AddRelations(relations)
			b.AddMetadata()

			if err := b.Save(output, kg.FormatTurtle); err != nil {
				return err
			}
			base := strings.TrimSuffix(output, filepath.Ext(output))
			for _, f := range formats {
				if f == kg.FormatTurtle {
					continue
				}
				if err := b.Save(base+"."+f.Extension(), f); err != nil {
					return err
				}
			}
			log.Printf("mlkg: graph built in %v", time.Since(start).Round(time.Millisecond))

			_, err = io.WriteString(cmd.OutOrStdout(), b.Report())
			return err
		},
	}
	cmd.Flags().String("entities-run", "", "Normalize run to read (default: latest)")
	cmd.Flags().String("relations-run", "", "Extract run to read (default: latest)")
	cmd.Flags().String("output", "", "Turtle output path (default: graph path from config)")
	cmd.Flags().StringSlice("formats", nil, "Additional serializations written next to the Turtle file (xml, n3, nt, json-ld)")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readArgOrStdin(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
