package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jonathan/freelance-market/internal/ingestion"
)

var (
	importFeed   string
	importOwner  string
	importSource string
)

var importJobsCmd = &cobra.Command{
	Use:   "import-jobs",
	Short: "Import job postings from a JSON feed",
	Long: `Read a JSON array of job records from a file or http(s) URL, validate
each against the feed schema and insert the valid ones as open jobs owned by
--owner. Invalid records and records already imported from the same source
are skipped and reported.`,
	RunE: runImportJobs,
}

func init() {
	importJobsCmd.Flags().StringVarP(&importFeed, "feed", "f", "", "Path or URL of the feed document (required)")
	importJobsCmd.Flags().StringVar(&importOwner, "owner", "", "User ID of the client that owns imported jobs (required)")
	importJobsCmd.Flags().StringVar(&importSource, "source", "", "Feed name stored as the job source (required)")

	_ = importJobsCmd.MarkFlagRequired("feed")
	_ = importJobsCmd.MarkFlagRequired("owner")
	_ = importJobsCmd.MarkFlagRequired("source")

	rootCmd.AddCommand(importJobsCmd)
}

func runImportJobs(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	ownerID, err := uuid.Parse(importOwner)
	if err != nil {
		return fmt.Errorf("--owner must be a UUID: %w", err)
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}

	data, meta, err := ingestion.ReadFeed(ctx, importFeed, nil)
	if err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{"location": meta.Location, "size": meta.Size, "hash": meta.Hash}).Info("feed loaded")

	database, err := e.connect(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	importer := &ingestion.Importer{Jobs: database, Users: database, Log: e.log}
	report, err := importer.Import(ctx, importSource, ownerID, data)
	if report != nil {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(report); encErr != nil {
			return fmt.Errorf("failed to write report: %w", encErr)
		}
	}
	return err
}
