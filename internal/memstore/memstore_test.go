package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/freelance-market/internal/store"
	"github.com/jonathan/freelance-market/internal/types"
)

func newJob(clientID uuid.UUID) *types.Job {
	return &types.Job{
		Title: "Job", Category: "design", Budget: decimal.NewFromInt(10),
		Skills: []string{"go"}, Status: types.JobStatusOpen, PaymentStatus: types.JobPaymentUnpaid,
		ClientID: clientID, Source: types.SourcePlatform,
	}
}

func TestInTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	job := newJob(uuid.New())
	require.NoError(t, s.CreateJob(ctx, job))

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx store.Store) error {
		ok, err := tx.CASJobStatus(ctx, job.ID, []types.JobStatus{types.JobStatusOpen}, types.JobStatusClosed, types.JobStatusChange{})
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, tx.CreateJob(ctx, newJob(uuid.New())))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusOpen, got.Status)

	all, err := s.ListJobs(ctx, types.JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestInTx_CommitsAndNests(t *testing.T) {
	ctx := context.Background()
	s := New()
	job := newJob(uuid.New())
	require.NoError(t, s.CreateJob(ctx, job))

	err := s.InTx(ctx, func(tx store.Store) error {
		if _, err := tx.IncrementApplicants(ctx, job.ID); err != nil {
			return err
		}
		return tx.InTx(ctx, func(inner store.Store) error {
			_, err := inner.IncrementApplicants(ctx, job.ID)
			return err
		})
	})
	require.NoError(t, err)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ApplicantsCount)
}

func TestIncrementApplicants_OnlyWhileOpen(t *testing.T) {
	ctx := context.Background()
	s := New()
	job := newJob(uuid.New())
	require.NoError(t, s.CreateJob(ctx, job))

	bumped, err := s.IncrementApplicants(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, bumped)

	ok, err := s.CASJobStatus(ctx, job.ID, []types.JobStatus{types.JobStatusOpen}, types.JobStatusClosed, types.JobStatusChange{})
	require.NoError(t, err)
	require.True(t, ok)

	bumped, err = s.IncrementApplicants(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, bumped)

	bumped, err = s.IncrementApplicants(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, bumped)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.ApplicantsCount)
}

func TestFailWrite_RollsBackTransaction(t *testing.T) {
	ctx := context.Background()
	s := New()
	job := newJob(uuid.New())
	require.NoError(t, s.CreateJob(ctx, job))

	boom := errors.New("disk full")
	s.FailWrite("CreateProposal", boom)
	err := s.InTx(ctx, func(tx store.Store) error {
		if _, err := tx.IncrementApplicants(ctx, job.ID); err != nil {
			return err
		}
		return tx.CreateProposal(ctx, &types.Proposal{JobID: job.ID, FreelancerID: uuid.New(), Status: types.ProposalPending})
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Zero(t, got.ApplicantsCount)

	s.FailWrite("CreateProposal", nil)
	require.NoError(t, s.CreateProposal(ctx, &types.Proposal{JobID: job.ID, FreelancerID: uuid.New(), Status: types.ProposalPending}))
}

func TestCAS(t *testing.T) {
	ctx := context.Background()
	s := New()
	clientID, freelancerID := uuid.New(), uuid.New()

	job := newJob(clientID)
	require.NoError(t, s.CreateJob(ctx, job))

	p := &types.Proposal{JobID: job.ID, FreelancerID: freelancerID, Status: types.ProposalPending}
	require.NoError(t, s.CreateProposal(ctx, p))
	assert.ErrorIs(t, s.CreateProposal(ctx, &types.Proposal{JobID: job.ID, FreelancerID: freelancerID}), store.ErrDuplicate)

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	ok, err := s.CASProposalStatus(ctx, p.ID, []types.ProposalStatus{types.ProposalPending}, types.ProposalShortlisted, at)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.CASProposalStatus(ctx, p.ID, []types.ProposalStatus{types.ProposalPending}, types.ProposalRejected, at)
	require.NoError(t, err)
	assert.False(t, ok, "stale source state must not apply")

	got, err := s.GetProposal(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ProposalShortlisted, got.Status)
	assert.Equal(t, at, *got.ShortlistedAt)
	assert.Nil(t, got.RejectedAt)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	job := newJob(uuid.New())
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	got.Title = "mutated"
	got.Skills[0] = "mutated"

	again, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "Job", again.Title)
	assert.Equal(t, "go", again.Skills[0])
}

func TestIncrementUserTotals(t *testing.T) {
	ctx := context.Background()
	s := New()
	u := &types.User{Email: "a@example.com", Role: types.RoleFreelancer, Status: types.UserActive}
	require.NoError(t, s.CreateUser(ctx, u))
	assert.ErrorIs(t, s.CreateUser(ctx, &types.User{Email: "A@example.com"}), store.ErrDuplicate)

	require.NoError(t, s.IncrementUserTotals(ctx, u.ID, decimal.RequireFromString("90.50"), decimal.Zero))
	require.NoError(t, s.IncrementUserTotals(ctx, u.ID, decimal.RequireFromString("9.50"), decimal.NewFromInt(3)))

	got, err := s.GetUserByEmail(ctx, "a@EXAMPLE.com")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100).Equal(got.TotalEarnings))
	assert.True(t, decimal.NewFromInt(3).Equal(got.TotalSpent))
}
