package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/timmy/recipe-ingest/internal/app"
	"github.com/timmy/recipe-ingest/internal/domain"
	"github.com/timmy/recipe-ingest/internal/logger"
)

// --- process ---

var processCmd = &cobra.Command{
	Use:   "process [files...]",
	Short: "Process files synchronously",
	Long: `Process the given files, or every supported file in the inbox when none
are given, and print a summary.

Examples:
  recipe-ingest process
  recipe-ingest process ./scans/lasagne.pdf ./notes/soup.txt`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			files := args
			if len(files) == 0 {
				var err error
				if files, err = a.Dirs.ListInbox(); err != nil {
					return err
				}
			}
			if len(files) == 0 {
				fmt.Println("Inbox is empty, nothing to process.")
				return nil
			}

			var sum summary
			for _, f := range files {
				if ctx.Err() != nil {
					break
				}
				path, err := filepath.Abs(f)
				if err != nil {
					return err
				}
				res, err := a.Service.ProcessSingleFile(ctx, path)
				if err != nil {
					logger.FromContext(ctx).WithError(err).WithField(logger.FieldFilePath, path).Warn("Skipping file")
					sum.Errors++
					continue
				}
				sum.add(res)
				printResult(filepath.Base(path), res)
			}
			sum.print(len(files))
			return ctx.Err()
		})
	},
}

type summary struct {
	Completed, Duplicates, Review, Retry, Failed, Skipped, Errors int
}

func (s *summary) add(res domain.ProcessingResult) {
	switch {
	case res.Skipped:
		s.Skipped++
	case res.IsDuplicate:
		s.Duplicates++
	case res.NeedsReview:
		s.Review++
	case res.Status == domain.JobStatusPending:
		s.Retry++
	case res.Success:
		s.Completed++
	default:
		s.Failed++
	}
}

func (s summary) print(total int) {
	fmt.Printf("\nProcessed %d file(s): %d completed, %d duplicate, %d need review, %d pending retry, %d failed, %d skipped, %d errors\n",
		total, s.Completed, s.Duplicates, s.Review, s.Retry, s.Failed, s.Skipped, s.Errors)
}

func printResult(name string, res domain.ProcessingResult) {
	line := fmt.Sprintf("%-40s %-13s", name, res.Status)
	if res.RecipeID != nil {
		line += " recipe=" + *res.RecipeID
	}
	if res.DuplicateOfRecipeID != nil {
		line += " duplicate_of=" + *res.DuplicateOfRecipeID
	}
	if res.ConfidenceScore != nil {
		line += fmt.Sprintf(" confidence=%.2f", *res.ConfidenceScore)
	}
	if res.ErrorMessage != nil {
		line += " error=" + *res.ErrorMessage
	}
	fmt.Println(line)
}

// --- reprocess ---

var reprocessCmd = &cobra.Command{
	Use:   "reprocess <job-id>",
	Short: "Reset a FAILED or DLQ job and process its file again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Service.Reprocess(ctx, args[0])
			if err != nil {
				if errors.Is(err, domain.ErrInvalidTransition) {
					return fmt.Errorf("job %s cannot be reprocessed: %w", args[0], err)
				}
				return err
			}
			printResult(args[0], res)
			return nil
		})
	},
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print job statistics as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			stats, err := a.Service.Stats(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		})
	},
}

// --- cleanup ---

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old files from the processed and failed areas",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			days, _ := cmd.Flags().GetInt("days")
			if days <= 0 {
				days = a.Config.Ingestion.CleanupDays
			}
			n, err := a.Service.CleanupOld(ctx, days)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d file(s) older than %d day(s).\n", n, days)
			return nil
		})
	},
}

func init() {
	cleanupCmd.Flags().Int("days", 0, "age threshold in days (defaults to ingestion.cleanup_days)")
}
