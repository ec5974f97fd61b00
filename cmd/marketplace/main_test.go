package main

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/freelance-market/internal/config"
	"github.com/jonathan/freelance-market/internal/delivery"
	"github.com/jonathan/freelance-market/internal/gateway"
	"github.com/jonathan/freelance-market/internal/lifecycle"
	"github.com/jonathan/freelance-market/internal/memstore"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"serve"},
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "version"},
		{"reconcile"},
		{"import-jobs"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}

	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, serveCmd.Flags().Lookup("port"))
	assert.NotNil(t, migrateDownCmd.Flags().Lookup("steps"))
	for _, name := range []string{"feed", "owner", "source"} {
		assert.NotNil(t, importJobsCmd.Flags().Lookup(name), name)
	}
}

func TestImportJobs_RejectsBadOwner(t *testing.T) {
	_, err := execute(t, "import-jobs", "--feed", "feed.json", "--owner", "not-a-uuid", "--source", "partner")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--owner must be a UUID")
}

func TestMigrateDown_RejectsZeroSteps(t *testing.T) {
	_, err := execute(t, "migrate", "down", "--steps", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--steps")
	migrateDownSteps = 1
}

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestEnv_RequireDatabaseURL(t *testing.T) {
	e := &env{cfg: &config.Config{}, log: discardLogger()}
	_, err := e.requireDatabaseURL()
	assert.ErrorContains(t, err, "DATABASE_URL")

	e.cfg.DatabaseURL = "postgres://localhost/market"
	url, err := e.requireDatabaseURL()
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/market", url)
}

func TestEnv_Deliverer(t *testing.T) {
	e := &env{cfg: &config.Config{}, log: discardLogger()}

	d, closer, err := e.deliverer(context.Background())
	require.NoError(t, err)
	defer closer()
	assert.IsType(t, &delivery.LogDeliverer{}, d)

	e.cfg.RedisURL = "not a redis url"
	_, _, err = e.deliverer(context.Background())
	assert.Error(t, err)
}

func TestScheduleReconcile(t *testing.T) {
	log, hook := test.NewNullLogger()
	engine := lifecycle.New(memstore.New(), gateway.NewMockGateway(), lifecycle.WithLogger(log))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler, err := scheduleReconcile(ctx, engine.Reconciler, "@every 1s", log)
	require.NoError(t, err)
	defer func() { <-scheduler.Stop().Done() }()

	require.Eventually(t, func() bool {
		for _, entry := range hook.AllEntries() {
			if entry.Message == "scheduled reconciliation finished" {
				return entry.Data["scanned"] == 0
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond)
}

func TestScheduleReconcile_InvalidSpec(t *testing.T) {
	engine := lifecycle.New(memstore.New(), gateway.NewMockGateway(), lifecycle.WithLogger(discardLogger()))

	_, err := scheduleReconcile(context.Background(), engine.Reconciler, "every tuesday", discardLogger())
	assert.ErrorContains(t, err, "invalid reconcile schedule")
}
