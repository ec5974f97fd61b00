//go:build integration

package db

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/freelance-market/internal/gateway"
	"github.com/jonathan/freelance-market/internal/lifecycle"
	"github.com/jonathan/freelance-market/internal/types"
)

// A bid racing an assignment either lands before it (and is rejected by it)
// or fails with invalid_state. It never stays pending on an in-progress job.
func TestIntegration_ProposalRacesAssignment(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	log := logrus.New()
	log.SetOutput(io.Discard)
	engine := lifecycle.New(db, gateway.NewMockGateway(), lifecycle.WithLogger(log))
	defer engine.Notifications.Wait()

	clientUser := createTestUser(t, db, types.RoleClient)
	client := types.ActorFor(clientUser)
	winner := types.ActorFor(createTestUser(t, db, types.RoleFreelancer))

	bid := types.CreateProposalInput{
		CoverLetter:      "I can start tomorrow and ship in a week.",
		ProposedBudget:   decimal.RequireFromString("450"),
		ProposedDuration: "1 week",
	}

	for round := 0; round < 10; round++ {
		job := createTestJob(t, db, clientUser.ID)
		_, err := engine.Proposals.Create(ctx, winner, job.ID, bid)
		require.NoError(t, err)

		bidders := make([]types.Actor, 8)
		for i := range bidders {
			bidders[i] = types.ActorFor(createTestUser(t, db, types.RoleFreelancer))
		}

		var wg sync.WaitGroup
		for _, b := range bidders {
			wg.Add(1)
			go func(b types.Actor) {
				defer wg.Done()
				_, err := engine.Proposals.Create(ctx, b, job.ID, bid)
				if err != nil {
					assert.True(t, lifecycle.IsKind(err, lifecycle.KindInvalidState), "unexpected error %v", err)
				}
			}(b)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := engine.Jobs.AssignFreelancer(ctx, client, job.ID, winner.ID)
			assert.NoError(t, err)
		}()
		wg.Wait()

		proposals, err := db.ListProposalsByJob(ctx, job.ID)
		require.NoError(t, err)
		for _, p := range proposals {
			if p.FreelancerID == winner.ID {
				assert.Equal(t, types.ProposalAccepted, p.Status)
				continue
			}
			assert.Equal(t, types.ProposalRejected, p.Status, "round %d: proposal %s left %s", round, p.ID, p.Status)
		}

		got, err := db.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, types.JobStatusInProgress, got.Status)
		assert.Equal(t, len(proposals), got.ApplicantsCount)
	}
}
