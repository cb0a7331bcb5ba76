package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"codevolve/internal/store"
)

var (
	ingestSpace     string
	ingestFramework string
	ingestDocType   string
	ingestVersion   string
	searchTopK      int
	searchSpace     string
)

// knowledgeCmd groups the knowledge-base subcommands
var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Manage the local knowledge base",
	Long: `Ingests documentation into the workspace vector store and searches
it the same way the retrieval phase does during a run.

The store lives at .codevolve/knowledge.db inside the workspace.`,
}

var knowledgeIngestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Chunk and embed documents into the knowledge base",
	Long: `Splits each file into paragraph-aligned chunks and embeds them.
Re-ingesting an unchanged file is a no-op; chunks are keyed by content hash.

Example:
  codevolve knowledge ingest --framework fastapi docs/*.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: ingestDocuments,
}

var knowledgeSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the knowledge base",
	Args:  cobra.MinimumNArgs(1),
	RunE:  searchKnowledge,
}

func init() {
	knowledgeIngestCmd.Flags().StringVar(&ingestSpace, "space", "general", "Knowledge space tag")
	knowledgeIngestCmd.Flags().StringVar(&ingestFramework, "framework", "", "Framework tag")
	knowledgeIngestCmd.Flags().StringVar(&ingestDocType, "doc-type", "documentation", "Document type tag")
	knowledgeIngestCmd.Flags().StringVar(&ingestVersion, "doc-version", "", "Document version tag")

	knowledgeSearchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 5, "Number of results")
	knowledgeSearchCmd.Flags().StringVar(&searchSpace, "space", "", "Restrict to a knowledge space")

	knowledgeCmd.AddCommand(knowledgeIngestCmd)
	knowledgeCmd.AddCommand(knowledgeSearchCmd)
}

// maxIngestChunk bounds a single chunk so one embedding call stays
// well under provider input limits.
const maxIngestChunk = 4000

func ingestDocuments(cmd *cobra.Command, args []string) error {
	st, err := store.Open(storePath(cfg), buildEmbedder())
	if err != nil {
		return fmt.Errorf("failed to open knowledge store: %w", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	total := 0
	for _, path := range args {
		chunks, err := chunkFile(path)
		if err != nil {
			return err
		}
		for i, content := range chunks {
			err := st.UpsertKnowledge(ctx, store.KnowledgeChunk{
				Source:         fmt.Sprintf("%s#%d", path, i),
				Content:        content,
				KnowledgeSpace: ingestSpace,
				DocumentType:   ingestDocType,
				Framework:      ingestFramework,
				Version:        ingestVersion,
			})
			if err != nil {
				return fmt.Errorf("failed to ingest %s: %w", path, err)
			}
		}
		total += len(chunks)
		fmt.Printf("%s: %d chunks\n", path, len(chunks))
	}
	fmt.Printf("ingested %d chunks\n", total)
	return nil
}

func searchKnowledge(cmd *cobra.Command, args []string) error {
	st, err := store.Open(storePath(cfg), buildEmbedder())
	if err != nil {
		return fmt.Errorf("failed to open knowledge store: %w", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	results, err := st.SearchKnowledge(ctx, strings.Join(args, " "), searchTopK,
		store.KnowledgeFilter{KnowledgeSpace: searchSpace})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("no results")
		return nil
	}

	for i, r := range results {
		fmt.Printf("--- %d. %s (score %.3f) ---\n%s\n\n", i+1, r.Source, r.RelevanceScore, r.Content)
	}
	return nil
}

// chunkFile splits a document on blank lines, packing paragraphs into
// chunks of at most maxIngestChunk bytes.
func chunkFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var (
		chunks []string
		cur    strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}

	for _, para := range strings.Split(string(data), "\n\n") {
		if cur.Len()+len(para) > maxIngestChunk && cur.Len() > 0 {
			flush()
		}
		cur.WriteString(para)
		cur.WriteString("\n\n")
	}
	flush()
	return chunks, nil
}
