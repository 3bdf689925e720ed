package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/streamharvest/streamharvest/internal/config"
	"github.com/streamharvest/streamharvest/internal/rag"
)

// NewIngestCmd creates the ingest command. Document text comes from --file
// or stdin.
func NewIngestCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	var (
		docID     string
		docType   string
		title     string
		sourceRef string
		tags      []string
		filePath  string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Chunk a document and index it into all enabled sinks",
		Example: `  streamharvest ingest --doc-id tr-001 --doc-type transcript \
      --source-ref video-abc --file transcript.txt
  cat summary.txt | streamharvest ingest --doc-id sm-001 --doc-type summary --source-ref video-abc`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readDocumentText(filePath, cmd.InOrStdin())
			if err != nil {
				return err
			}

			app, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.close()

			result, err := app.orchestrator.Ingest(cmd.Context(), rag.Document{
				ID:        docID,
				Type:      rag.DocType(docType),
				Text:      text,
				Title:     title,
				SourceRef: sourceRef,
				Tags:      tags,
			})
			if err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&docID, "doc-id", "", "document identifier (required)")
	cmd.Flags().StringVar(&docType, "doc-type", string(rag.DocTypeGenericDocument),
		"document type: transcript, summary, generic_document, linkedin_post, strategy_artifact")
	cmd.Flags().StringVar(&title, "title", "", "document title")
	cmd.Flags().StringVar(&sourceRef, "source-ref", "", "source reference, e.g. the video id (required)")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "tag to attach (repeatable)")
	cmd.Flags().StringVar(&filePath, "file", "", "read document text from this file instead of stdin")
	_ = cmd.MarkFlagRequired("doc-id")
	_ = cmd.MarkFlagRequired("source-ref")

	return cmd
}

// readDocumentText reads the full document body from path, or from in when
// path is empty.
func readDocumentText(path string, in io.Reader) (string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading document file: %w", err)
		}
		return string(data), nil
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("reading document from stdin: %w", err)
	}
	return string(data), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
