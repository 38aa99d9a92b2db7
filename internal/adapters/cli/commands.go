// Package cli holds the operator commands of pdfchatctl.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/pdf-chat/internal/core/domain"
	"github.com/kirillkom/pdf-chat/internal/core/ports"
)

// DocumentLookup reads a document without an owner scope. Operators act on
// behalf of whoever owns the document.
type DocumentLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

type Deps struct {
	Lookup    DocumentLookup
	Documents ports.DocumentService
	Timeout   time.Duration
}

func NewRootCommand(deps Deps) *cobra.Command {
	if deps.Timeout <= 0 {
		deps.Timeout = 30 * time.Second
	}

	root := &cobra.Command{
		Use:           "pdfchatctl",
		Short:         "Operate the PDF chat ingestion pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "status [doc-id]",
			Short: "Show the ingestion status of a document",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), deps.Timeout)
				defer cancel()
				return runStatus(ctx, cmd.OutOrStdout(), deps, args[0])
			},
		},
		&cobra.Command{
			Use:   "reingest [doc-id]",
			Short: "Queue a new ingestion run for a ready or failed document",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), deps.Timeout)
				defer cancel()
				return runReingest(ctx, cmd.OutOrStdout(), deps, args[0])
			},
		},
		newListCommand(deps),
	)
	return root
}

func newListCommand(deps Deps) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the documents of an owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if owner == "" {
				return errors.New("--owner is required")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), deps.Timeout)
			defer cancel()

			docs, err := deps.Documents.List(ctx, owner)
			if err != nil {
				return fmt.Errorf("list documents: %w", err)
			}
			if len(docs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No documents for owner %s\n", owner)
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tCHUNKS\tFILE")
			for _, doc := range docs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", doc.ID, doc.Status, doc.ChunkCount, doc.FileName)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id whose documents to list")
	return cmd
}

func runStatus(ctx context.Context, out io.Writer, deps Deps, id string) error {
	doc, err := deps.Lookup.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", doc.ID)
	fmt.Fprintf(tw, "Owner:\t%s\n", doc.OwnerID)
	fmt.Fprintf(tw, "File:\t%s (%d bytes)\n", doc.FileName, doc.FileSizeBytes)
	fmt.Fprintf(tw, "Status:\t%s\n", doc.Status)
	if doc.PageCount != nil {
		fmt.Fprintf(tw, "Pages:\t%d\n", *doc.PageCount)
	}
	fmt.Fprintf(tw, "Chunks:\t%d\n", doc.ChunkCount)
	if doc.DegradedChunks > 0 {
		fmt.Fprintf(tw, "Degraded:\t%d (%s)\n", doc.DegradedChunks, doc.IndexWarning)
	}
	if doc.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", doc.Error)
	}
	fmt.Fprintf(tw, "Updated:\t%s\n", doc.UpdatedAt.Format(time.RFC3339))
	return tw.Flush()
}

func runReingest(ctx context.Context, out io.Writer, deps Deps, id string) error {
	doc, err := deps.Lookup.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("get document: %w", err)
	}
	if _, err := deps.Documents.Reingest(ctx, doc.ID, doc.OwnerID); err != nil {
		return fmt.Errorf("reingest document: %w", err)
	}
	fmt.Fprintf(out, "Queued re-ingestion of %s (was %s)\n", doc.ID, doc.Status)
	return nil
}
