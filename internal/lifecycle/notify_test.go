package lifecycle

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/freelance-market/internal/types"
)

func TestDispatcher_RecordFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t, nil)
	job := f.openJob()
	f.propose(job, f.freelancer)

	f.store.FailNotifications(true)
	got, outcome, err := f.engine.Jobs.AssignFreelancer(f.ctx, f.client, job.ID, f.freelancer.ID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
	assert.Equal(t, types.JobStatusInProgress, got.Status)

	f.store.FailNotifications(false)
	assert.Empty(t, f.notifications(f.freelancer))
}

func TestDispatcher_DeliveryFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, nil)
	f.deliverer.err = errors.New("smtp down")

	job := f.openJob()
	f.propose(job, f.freelancer)
	_, _, err := f.engine.Jobs.AssignFreelancer(f.ctx, f.client, job.ID, f.freelancer.ID)
	require.NoError(t, err)

	f.engine.Notifications.Wait()
	assert.Empty(t, f.deliverer.messages())
	assert.Len(t, f.notifications(f.freelancer), 1, "the record exists even though delivery failed")
}

func TestDispatcher_Templates(t *testing.T) {
	f := newFixture(t, nil)
	jobID := uuid.New()

	d := NewDispatcher(f.store, f.deliverer, f.engine.Jobs.log, 1, map[types.NotificationType]types.NotificationTemplate{
		types.NotifyJobAssigned: {Title: "Hired for {job_title}", Message: "Job {job_id}", ActionURL: "/app/jobs/{job_id}"},
	})
	n := d.Emit(f.ctx, NotificationInput{
		UserID: f.freelancer.ID,
		Type:   types.NotifyJobAssigned,
		Refs:   types.NotificationRefs{JobID: &jobID},
		Vars:   map[string]string{"job_title": "Logo"},
	})
	d.Wait()

	require.NotNil(t, n)
	assert.Equal(t, "Hired for Logo", n.Title)
	assert.Equal(t, "Job "+jobID.String(), n.Message)
	assert.Equal(t, "/app/jobs/"+jobID.String(), n.ActionURL)
	assert.False(t, n.IsRead)

	msgs := f.deliverer.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hired for Logo", msgs[0].args["title"])
	assert.Equal(t, n.ID.String(), msgs[0].args["notification_id"])

	for typ := range DefaultTemplates {
		assert.NotEmpty(t, DefaultTemplates[typ].Title, typ)
	}
	assert.Len(t, DefaultTemplates, 10)
}

func TestDispatcher_ReadSideIsScopedToUser(t *testing.T) {
	f := newFixture(t, nil)
	job := f.openJob()
	f.propose(job, f.freelancer)
	f.propose(job, f.other)

	notes := f.notifications(f.client)
	require.Len(t, notes, 2)

	count, err := f.engine.Notifications.UnreadCount(f.ctx, f.client)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	requireKind(t, f.engine.Notifications.MarkRead(f.ctx, f.freelancer, notes[0].ID), KindNotFound)
	requireKind(t, f.engine.Notifications.Delete(f.ctx, f.freelancer, notes[0].ID), KindNotFound)

	require.NoError(t, f.engine.Notifications.MarkRead(f.ctx, f.client, notes[0].ID))
	require.NoError(t, f.engine.Notifications.MarkRead(f.ctx, f.client, notes[0].ID))
	count, err = f.engine.Notifications.UnreadCount(f.ctx, f.client)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	unread, err := f.engine.Notifications.List(f.ctx, f.client, types.NotificationFilter{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, notes[1].ID, unread[0].ID)

	marked, err := f.engine.Notifications.MarkAllRead(f.ctx, f.client)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	require.NoError(t, f.engine.Notifications.Delete(f.ctx, f.client, notes[0].ID))
	cleared, err := f.engine.Notifications.Clear(f.ctx, f.client)
	require.NoError(t, err)
	assert.Equal(t, 1, cleared)
	assert.Empty(t, f.notifications(f.client))
}
