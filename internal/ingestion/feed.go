package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/freelance-market/internal/schemas"
	"github.com/jonathan/freelance-market/internal/store"
	"github.com/jonathan/freelance-market/internal/types"
)

// Record is one job posting in a feed document. The feed is a JSON array of
// records validated against the embedded job feed schema.
type Record struct {
	ExternalID  string          `json:"external_id,omitempty"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Budget      decimal.Decimal `json:"budget"`
	BudgetType  string          `json:"budget_type"`
	Duration    string          `json:"duration"`
	Experience  string          `json:"experience"`
	Skills      []string        `json:"skills"`
	Location    string          `json:"location,omitempty"`
}

// Job converts the record into an open, unpaid job owned by clientID and
// tagged with the feed name and the record's external id.
func (r *Record) Job(feed string, clientID uuid.UUID) *types.Job {
	return &types.Job{
		Title:         strings.TrimSpace(r.Title),
		Description:   strings.TrimSpace(r.Description),
		Category:      r.Category,
		Budget:        r.Budget.Round(2),
		BudgetType:    r.BudgetType,
		Duration:      r.Duration,
		Experience:    r.Experience,
		Skills:        append([]string(nil), r.Skills...),
		Location:      r.Location,
		Status:        types.JobStatusOpen,
		PaymentStatus: types.JobPaymentUnpaid,
		ClientID:      clientID,
		Source:        feed,
		ExternalID:    strings.TrimSpace(r.ExternalID),
	}
}

// SkippedRecord names a feed record that was not imported.
type SkippedRecord struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Report summarizes one import run.
type Report struct {
	Feed     string          `json:"feed"`
	Total    int             `json:"total"`
	Imported []uuid.UUID     `json:"imported"`
	Skipped  []SkippedRecord `json:"skipped"`
	// Duplicates counts skipped records whose external id the feed already imported.
	Duplicates int `json:"duplicates"`
}

// Importer validates feed records and inserts them as jobs.
type Importer struct {
	Jobs  store.JobStore
	Users store.UserStore
	Log   *logrus.Logger
}

// Import validates every record of data and inserts the valid ones as jobs
// owned by clientID. Invalid records, and records whose external id was
// imported from the same feed before, are skipped and logged. Only a malformed
// document or a store failure aborts the run.
func (im *Importer) Import(ctx context.Context, feed string, clientID uuid.UUID, data []byte) (*Report, error) {
	if feed == "" || feed == types.SourcePlatform {
		return nil, fmt.Errorf("feed name must be set and must not be %q", types.SourcePlatform)
	}

	owner, err := im.Users.GetUser(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load feed owner: %w", err)
	}
	if owner == nil {
		return nil, fmt.Errorf("feed owner %s does not exist", clientID)
	}
	if owner.Role != types.RoleClient && owner.Role != types.RoleAdmin {
		return nil, fmt.Errorf("feed owner %s has role %s, want client or admin", clientID, owner.Role)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse feed: expected a JSON array of records: %w", err)
	}

	report := &Report{Feed: feed, Total: len(raw), Imported: []uuid.UUID{}, Skipped: []SkippedRecord{}}
	for i, rec := range raw {
		log := im.Log.WithFields(logrus.Fields{"feed": feed, "index": i})

		if err := schemas.ValidateFeedRecord(rec); err != nil {
			log.WithError(err).Warn("skipping invalid feed record")
			report.Skipped = append(report.Skipped, SkippedRecord{Index: i, Reason: err.Error()})
			continue
		}

		var r Record
		if err := json.Unmarshal(rec, &r); err != nil {
			log.WithError(err).Warn("skipping undecodable feed record")
			report.Skipped = append(report.Skipped, SkippedRecord{Index: i, Reason: err.Error()})
			continue
		}

		job := r.Job(feed, clientID)
		if err := im.Jobs.CreateJob(ctx, job); err != nil {
			if errors.Is(err, store.ErrDuplicate) && job.ExternalID != "" {
				log.WithField("external_id", job.ExternalID).Info("skipping already imported feed record")
				report.Skipped = append(report.Skipped, SkippedRecord{Index: i, Reason: "duplicate external_id " + job.ExternalID})
				report.Duplicates++
				continue
			}
			return report, fmt.Errorf("failed to insert feed record %d: %w", i, err)
		}
		log.WithFields(logrus.Fields{"job_id": job.ID, "external_id": r.ExternalID}).Info("imported feed record")
		report.Imported = append(report.Imported, job.ID)
	}
	return report, nil
}
