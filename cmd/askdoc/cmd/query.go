package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/askdoc/askdoc/internal/store"
)

// queryOptions holds CLI flags for query.
type queryOptions struct {
	uid     string
	doc     string
	history []string
	format  string // "text", "json"
}

func newQueryCmd() *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Retrieve context for a question",
		Long: `Retrieve the context chunks answering a question over the indexed
documents.

The question is expanded into up to three sub-queries (error-code
refinement, LLM expansion, the raw question); each runs hybrid
BM25 + embedding retrieval and the ranked lists are merged with
reciprocal rank fusion. Page references like "p. 12" narrow the
search to that page.

Examples:
  askdoc query "how do I calibrate the load cell"
  askdoc query "what does E501 mean" --doc press_manual.pdf
  askdoc query "설치 방법" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			return runQuery(cmd.Context(), cmd, question, opts)
		},
	}

	cmd.Flags().StringVar(&opts.uid, "uid", "default", "Tenant identifier")
	cmd.Flags().StringVar(&opts.doc, "doc", "", "Restrict retrieval to one document")
	cmd.Flags().StringSliceVar(&opts.history, "history", nil, "Prior conversation turns (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runQuery(ctx context.Context, cmd *cobra.Command, question string, opts queryOptions) error {
	a, err := newApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.engine.Query(ctx, opts.uid, question, opts.history, opts.doc)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(queryResponse{
			Question:      question,
			ExpandedQuery: result.ExpandedQuery,
			Chunks:        toChunkViews(result.Chunks),
		})
	}

	if len(result.Chunks) == 0 {
		fmt.Fprintln(out, "no results")
		return nil
	}
	if result.ExpandedQuery != "" && result.ExpandedQuery != question {
		fmt.Fprintf(out, "expanded: %s\n", result.ExpandedQuery)
	}
	for i, c := range result.Chunks {
		fmt.Fprintf(out, "%d. [%s p.%d %s] %s\n", i+1, c.DocName, c.Page, c.ChunkType, firstLine(c.Content))
	}
	return nil
}

type queryResponse struct {
	Question      string      `json:"question"`
	ExpandedQuery string      `json:"expanded_query,omitempty"`
	Chunks        []chunkView `json:"chunks"`
}

type chunkView struct {
	DocID     string `json:"doc_id"`
	DocName   string `json:"doc_name"`
	Page      int    `json:"page"`
	ChunkType string `json:"chunk_type"`
	Content   string `json:"content"`
	Chapter   string `json:"chapter,omitempty"`
	Keywords  string `json:"keywords,omitempty"`
}

func toChunkViews(chunks []*store.Chunk) []chunkView {
	views := make([]chunkView, 0, len(chunks))
	for _, c := range chunks {
		views = append(views, chunkView{
			DocID:     c.DocID,
			DocName:   c.DocName,
			Page:      c.Page,
			ChunkType: string(c.ChunkType),
			Content:   c.Content,
			Chapter:   c.ChapterPath,
			Keywords:  c.Keywords,
		})
	}
	return views
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const max = 120
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max]) + "..."
	}
	return s
}
