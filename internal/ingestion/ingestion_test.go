package ingestion

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/freelance-market/internal/memstore"
	"github.com/jonathan/freelance-market/internal/types"
)

const feedDoc = `[
  {
    "external_id": "a-1",
    "title": "Logo for a coffee brand",
    "description": "Need a modern wordmark and an icon variant.",
    "category": "design",
    "budget": 300,
    "budget_type": "fixed",
    "duration": "1 week",
    "experience": "Intermediate",
    "skills": ["illustrator"]
  },
  {
    "title": "x",
    "description": "too short title",
    "category": "design",
    "budget": 10,
    "budget_type": "fixed",
    "duration": "1 day",
    "experience": "Entry",
    "skills": ["figma"]
  },
  {
    "title": "Weekly newsletter copy",
    "description": "Four newsletters a month for a fintech audience.",
    "category": "writing",
    "budget": 25.005,
    "budget_type": "hourly",
    "duration": "3 months",
    "experience": "Expert",
    "skills": ["copywriting", "fintech"],
    "location": "Remote"
  }
]`

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newImporter(t *testing.T, role types.Role) (*Importer, *memstore.Store, uuid.UUID) {
	t.Helper()
	st := memstore.New()
	owner := &types.User{Name: "Feed Owner", Email: uuid.NewString() + "@example.com", Role: role, Status: types.UserActive}
	require.NoError(t, st.CreateUser(context.Background(), owner))
	return &Importer{Jobs: st, Users: st, Log: quietLogger()}, st, owner.ID
}

func TestImport(t *testing.T) {
	im, st, owner := newImporter(t, types.RoleClient)
	ctx := context.Background()

	report, err := im.Import(ctx, "acme-feed", owner, []byte(feedDoc))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	require.Len(t, report.Imported, 2)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, 1, report.Skipped[0].Index)

	job, err := st.GetJob(ctx, report.Imported[1])
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "acme-feed", job.Source)
	assert.False(t, job.IsPlatform())
	assert.Equal(t, types.JobStatusOpen, job.Status)
	assert.Equal(t, types.JobPaymentUnpaid, job.PaymentStatus)
	assert.Equal(t, owner, job.ClientID)
	assert.Equal(t, "25.01", job.Budget.StringFixed(2))
	assert.Equal(t, []string{"copywriting", "fintech"}, job.Skills)
}

func TestImport_SkipsAlreadyImportedRecords(t *testing.T) {
	im, st, owner := newImporter(t, types.RoleClient)
	ctx := context.Background()

	first, err := im.Import(ctx, "acme-feed", owner, []byte(feedDoc))
	require.NoError(t, err)
	require.Len(t, first.Imported, 2)
	assert.Zero(t, first.Duplicates)

	job, err := st.GetJob(ctx, first.Imported[0])
	require.NoError(t, err)
	assert.Equal(t, "a-1", job.ExternalID)

	again, err := im.Import(ctx, "acme-feed", owner, []byte(feedDoc))
	require.NoError(t, err)
	assert.Equal(t, 1, again.Duplicates)
	require.Len(t, again.Skipped, 2)
	assert.Equal(t, 0, again.Skipped[0].Index)
	assert.Contains(t, again.Skipped[0].Reason, "duplicate external_id")
	require.Len(t, again.Imported, 1, "records without an external id are always imported")

	other, err := im.Import(ctx, "other-feed", owner, []byte(feedDoc))
	require.NoError(t, err)
	assert.Zero(t, other.Duplicates)
	assert.Len(t, other.Imported, 2)

	all, err := st.ListJobs(ctx, types.JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestImport_Errors(t *testing.T) {
	ctx := context.Background()

	im, _, owner := newImporter(t, types.RoleClient)
	_, err := im.Import(ctx, types.SourcePlatform, owner, []byte(feedDoc))
	assert.Error(t, err, "feeds cannot masquerade as the platform")

	_, err = im.Import(ctx, "acme-feed", owner, []byte(`{"title": "not an array"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected a JSON array")

	_, err = im.Import(ctx, "acme-feed", uuid.New(), []byte(feedDoc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	im, _, freelancer := newImporter(t, types.RoleFreelancer)
	_, err = im.Import(ctx, "acme-feed", freelancer, []byte(feedDoc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want client or admin")
}

func TestReadFeed_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.json")
	require.NoError(t, os.WriteFile(path, []byte(feedDoc), 0644))

	data, meta, err := ReadFeed(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, feedDoc, string(data))
	assert.Equal(t, path, meta.Location)
	assert.Len(t, meta.Hash, 64)
	assert.Equal(t, len(feedDoc), meta.Size)

	_, _, err = ReadFeed(context.Background(), filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.Error(t, err)
}

func TestReadFeed_URL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feed.json" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(feedDoc))
	}))
	defer server.Close()

	data, meta, err := ReadFeed(context.Background(), server.URL+"/feed.json", server.Client())
	require.NoError(t, err)
	assert.Equal(t, feedDoc, string(data))
	assert.Equal(t, server.URL+"/feed.json", meta.Location)

	_, _, err = ReadFeed(context.Background(), server.URL+"/other.json", server.Client())
	assert.True(t, errors.Is(err, ErrHTTPRequestFailed))
}
