package server

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/freelance-market/internal/types"
)

func jobBody(budget decimal.Decimal) map[string]any {
	return map[string]any{
		"title":       "Build a booking widget",
		"description": "Embeddable calendar widget with Stripe-free checkout.",
		"category":    "web-development",
		"budget":      budget,
		"budget_type": "fixed",
		"duration":    "3 weeks",
		"experience":  "Intermediate",
		"skills":      []string{"javascript", "css"},
	}
}

func proposalBody() map[string]any {
	return map[string]any{
		"cover_letter":      "I have shipped three booking widgets this year.",
		"proposed_budget":   "950.00",
		"proposed_duration": "2 weeks",
	}
}

func (e *testEnv) createJob(token string) types.Job {
	e.t.Helper()
	w := e.do(http.MethodPost, "/jobs", token, jobBody(decimal.RequireFromString("1000")))
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody[types.Job](e.t, w)
}

func (e *testEnv) propose(jobID uuid.UUID, token string) types.Proposal {
	e.t.Helper()
	w := e.do(http.MethodPost, "/jobs/"+jobID.String()+"/proposals", token, proposalBody())
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody[types.Proposal](e.t, w)
}

func notificationTypes(list []types.Notification) []types.NotificationType {
	out := make([]types.NotificationType, 0, len(list))
	for _, n := range list {
		out = append(out, n.Type)
	}
	return out
}

// TestMarketplaceFlow drives a job from posting to released escrow over HTTP.
func TestMarketplaceFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	client, clientToken := env.user(types.RoleClient)
	winner, winnerToken := env.user(types.RoleFreelancer)
	_, loserToken := env.user(types.RoleFreelancer)

	job := env.createJob(clientToken)
	assert.Equal(t, types.JobStatusOpen, job.Status)
	assert.Equal(t, types.JobPaymentUnpaid, job.PaymentStatus)
	assert.Equal(t, types.SourcePlatform, job.Source)
	assert.Equal(t, client.ID, job.ClientID)
	jobPath := "/jobs/" + job.ID.String()

	won := env.propose(job.ID, winnerToken)
	lost := env.propose(job.ID, loserToken)

	w := env.do(http.MethodPost, jobPath+"/proposals", loserToken, proposalBody())
	assertError(t, w, http.StatusConflict, "conflict")

	w = env.do(http.MethodGet, jobPath+"/proposals/check", winnerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeBody[map[string]bool](t, w)["exists"])

	w = env.do(http.MethodGet, jobPath, clientToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decodeBody[types.Job](t, w).ApplicantsCount)

	w = env.do(http.MethodPatch, "/proposals/"+won.ID.String()+"/status", clientToken, map[string]string{"status": "shortlisted"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, types.ProposalShortlisted, decodeBody[types.Proposal](t, w).Status)

	w = env.do(http.MethodPatch, "/proposals/"+won.ID.String()+"/status", clientToken, map[string]string{"status": "accepted"})
	assertError(t, w, http.StatusBadRequest, "validation_error")

	// Assignment settles every proposal on the job.
	w = env.do(http.MethodPost, jobPath+"/assign", clientToken, map[string]string{"freelancer_id": winner.ID.String()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assigned := decodeBody[transitionResponse](t, w)
	assert.Equal(t, "applied", string(assigned.Outcome))
	assert.Equal(t, types.JobStatusInProgress, assigned.Job.Status)
	require.NotNil(t, assigned.Job.AssignedFreelancer)
	assert.Equal(t, winner.ID, *assigned.Job.AssignedFreelancer)

	w = env.do(http.MethodPost, jobPath+"/assign", clientToken, map[string]string{"freelancer_id": winner.ID.String()})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "unchanged", string(decodeBody[transitionResponse](t, w).Outcome))

	w = env.do(http.MethodGet, "/proposals/"+lost.ID.String(), loserToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, types.ProposalRejected, decodeBody[types.Proposal](t, w).Status)

	w = env.do(http.MethodGet, "/proposals/"+won.ID.String(), winnerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, types.ProposalAccepted, decodeBody[types.Proposal](t, w).Status)

	// Escrow
	w = env.do(http.MethodPost, jobPath+"/payments/order", clientToken, map[string]string{"amount": "1000.00"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decodeBody[types.Order](t, w)
	assert.NotEmpty(t, order.ID)

	w = env.do(http.MethodPost, jobPath+"/payments", clientToken, map[string]any{
		"amount":    "1000.00",
		"milestone": "Full delivery",
		"gateway": map[string]string{
			"order_id":   order.ID,
			"payment_id": "pay_123",
			"signature":  "sig",
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	payment := decodeBody[types.Payment](t, w)
	assert.Equal(t, types.PaymentEscrow, payment.Status)
	assert.Equal(t, "100.00", payment.PlatformFee.StringFixed(2))
	assert.Equal(t, "900.00", payment.FreelancerAmount.StringFixed(2))
	paymentPath := "/payments/" + payment.ID.String()

	w = env.do(http.MethodGet, jobPath, clientToken, nil)
	assert.Equal(t, types.JobPaymentEscrow, decodeBody[types.Job](t, w).PaymentStatus)

	w = env.do(http.MethodPost, paymentPath+"/release", winnerToken, nil)
	assertError(t, w, http.StatusForbidden, "forbidden")

	w = env.do(http.MethodPost, paymentPath+"/release", clientToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, types.PaymentReleased, decodeBody[types.Payment](t, w).Status)

	w = env.do(http.MethodPost, paymentPath+"/release", clientToken, nil)
	assertError(t, w, http.StatusConflict, "invalid_state")

	w = env.do(http.MethodPost, jobPath+"/complete", clientToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	completed := decodeBody[transitionResponse](t, w)
	assert.Equal(t, types.JobStatusCompleted, completed.Job.Status)
	assert.Equal(t, types.JobPaymentPaid, completed.Job.PaymentStatus)

	// Counters
	w = env.do(http.MethodGet, "/users/me", winnerToken, nil)
	assert.Equal(t, "900.00", decodeBody[types.User](t, w).TotalEarnings.StringFixed(2))
	w = env.do(http.MethodGet, "/users/me", clientToken, nil)
	assert.Equal(t, "1000.00", decodeBody[types.User](t, w).TotalSpent.StringFixed(2))

	// Completed jobs are frozen.
	w = env.do(http.MethodPatch, jobPath, clientToken, map[string]string{"title": "Renamed job"})
	assertError(t, w, http.StatusConflict, "invalid_state")
	w = env.do(http.MethodDelete, jobPath, clientToken, nil)
	assertError(t, w, http.StatusConflict, "invalid_state")

	// Notifications
	w = env.do(http.MethodGet, "/notifications", winnerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	inbox := decodeBody[struct {
		Notifications []types.Notification `json:"notifications"`
		UnreadCount   int                  `json:"unread_count"`
	}](t, w)
	assert.ElementsMatch(t, []types.NotificationType{
		types.NotifyProposalShortlisted,
		types.NotifyJobAssigned,
		types.NotifyPaymentReceived,
		types.NotifyPaymentReleased,
		types.NotifyJobCompleted,
	}, notificationTypes(inbox.Notifications))
	assert.Equal(t, 5, inbox.UnreadCount)

	w = env.do(http.MethodGet, "/notifications", clientToken, nil)
	clientInbox := decodeBody[struct {
		Notifications []types.Notification `json:"notifications"`
	}](t, w)
	assert.ElementsMatch(t, []types.NotificationType{
		types.NotifyProposalReceived,
		types.NotifyProposalReceived,
	}, notificationTypes(clientInbox.Notifications))

	w = env.do(http.MethodGet, "/payments/"+payment.ID.String(), loserToken, nil)
	assertError(t, w, http.StatusForbidden, "forbidden")
}

func TestJobHandlers_Errors(t *testing.T) {
	env := newTestEnv(t, nil)
	_, clientToken := env.user(types.RoleClient)
	_, otherClientToken := env.user(types.RoleClient)
	_, freelancerToken := env.user(types.RoleFreelancer)

	w := env.do(http.MethodPost, "/jobs", freelancerToken, jobBody(decimal.RequireFromString("10")))
	assertError(t, w, http.StatusForbidden, "forbidden")

	w = env.do(http.MethodPost, "/jobs", clientToken, jobBody(decimal.Zero))
	assertError(t, w, http.StatusBadRequest, "validation_error")

	body := jobBody(decimal.RequireFromString("10"))
	body["category"] = "gardening"
	w = env.do(http.MethodPost, "/jobs", clientToken, body)
	assertError(t, w, http.StatusBadRequest, "validation_error")

	body = jobBody(decimal.RequireFromString("10"))
	body["status"] = "completed"
	w = env.do(http.MethodPost, "/jobs", clientToken, body)
	assertError(t, w, http.StatusBadRequest, "validation_error")

	w = env.do(http.MethodGet, "/jobs/not-a-uuid", clientToken, nil)
	assertError(t, w, http.StatusBadRequest, "validation_error")

	w = env.do(http.MethodGet, "/jobs/"+uuid.NewString(), clientToken, nil)
	assertError(t, w, http.StatusNotFound, "not_found")

	w = env.do(http.MethodGet, "/jobs?status=archived", clientToken, nil)
	assertError(t, w, http.StatusBadRequest, "validation_error")

	job := env.createJob(clientToken)
	jobPath := "/jobs/" + job.ID.String()

	w = env.do(http.MethodPatch, jobPath, otherClientToken, map[string]string{"title": "Hijacked title"})
	assertError(t, w, http.StatusForbidden, "forbidden")

	w = env.do(http.MethodPost, jobPath+"/complete", clientToken, nil)
	assertError(t, w, http.StatusConflict, "invalid_state")

	w = env.do(http.MethodPost, jobPath+"/assign", clientToken, map[string]string{"freelancer_id": uuid.NewString()})
	assertError(t, w, http.StatusNotFound, "not_found")
}

func TestJobHandlers_UpdateListCloseCancelDelete(t *testing.T) {
	env := newTestEnv(t, nil)
	client, clientToken := env.user(types.RoleClient)
	_, freelancerToken := env.user(types.RoleFreelancer)

	first := env.createJob(clientToken)
	second := env.createJob(clientToken)

	w := env.do(http.MethodPatch, "/jobs/"+first.ID.String(), clientToken, map[string]any{
		"title":  "Booking widget v2",
		"budget": "1500.50",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decodeBody[types.Job](t, w)
	assert.Equal(t, "Booking widget v2", updated.Title)
	assert.Equal(t, "1500.50", updated.Budget.StringFixed(2))

	w = env.do(http.MethodGet, "/jobs?client_id="+client.ID.String()+"&status=open&limit=10", freelancerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeBody[struct {
		Jobs  []types.Job `json:"jobs"`
		Count int         `json:"count"`
		Limit int         `json:"limit"`
	}](t, w)
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, 10, list.Limit)

	w = env.do(http.MethodPost, "/jobs/"+first.ID.String()+"/close", clientToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, types.JobStatusClosed, decodeBody[types.Job](t, w).Status)

	w = env.do(http.MethodPost, "/jobs/"+first.ID.String()+"/proposals", freelancerToken, proposalBody())
	assertError(t, w, http.StatusConflict, "invalid_state")

	w = env.do(http.MethodPost, "/jobs/"+first.ID.String()+"/cancel", clientToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, types.JobStatusCancelled, decodeBody[types.Job](t, w).Status)

	w = env.do(http.MethodGet, "/jobs?status=open", clientToken, nil)
	list = decodeBody[struct {
		Jobs  []types.Job `json:"jobs"`
		Count int         `json:"count"`
		Limit int         `json:"limit"`
	}](t, w)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, second.ID, list.Jobs[0].ID)

	w = env.do(http.MethodDelete, "/jobs/"+second.ID.String(), clientToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(http.MethodGet, "/jobs/"+second.ID.String(), clientToken, nil)
	assertError(t, w, http.StatusNotFound, "not_found")
}

func TestProposalHandlers_WithdrawAndMine(t *testing.T) {
	env := newTestEnv(t, nil)
	_, clientToken := env.user(types.RoleClient)
	_, freelancerToken := env.user(types.RoleFreelancer)

	job := env.createJob(clientToken)
	proposal := env.propose(job.ID, freelancerToken)

	w := env.do(http.MethodPost, "/proposals/"+proposal.ID.String()+"/withdraw", clientToken, nil)
	assertError(t, w, http.StatusForbidden, "forbidden")

	w = env.do(http.MethodPost, "/proposals/"+proposal.ID.String()+"/withdraw", freelancerToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, types.ProposalWithdrawn, decodeBody[types.Proposal](t, w).Status)

	w = env.do(http.MethodPost, "/proposals/"+proposal.ID.String()+"/withdraw", freelancerToken, nil)
	assertError(t, w, http.StatusConflict, "invalid_state")

	w = env.do(http.MethodGet, "/proposals/mine", freelancerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	mine := decodeBody[struct {
		Proposals []types.Proposal `json:"proposals"`
		Count     int              `json:"count"`
	}](t, w)
	require.Equal(t, 1, mine.Count)
	assert.Equal(t, proposal.ID, mine.Proposals[0].ID)

	w = env.do(http.MethodGet, "/jobs/"+job.ID.String()+"/proposals", freelancerToken, nil)
	assertError(t, w, http.StatusForbidden, "forbidden")

	w = env.do(http.MethodGet, "/jobs/"+job.ID.String()+"/proposals", clientToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestPaymentHandlers_DisputeAndRefund(t *testing.T) {
	env := newTestEnv(t, nil)
	_, clientToken := env.user(types.RoleClient)
	freelancer, freelancerToken := env.user(types.RoleFreelancer)
	_, adminToken := env.user(types.RoleAdmin)

	job := env.createJob(clientToken)
	env.propose(job.ID, freelancerToken)
	w := env.do(http.MethodPost, "/jobs/"+job.ID.String()+"/assign", clientToken, map[string]string{"freelancer_id": freelancer.ID.String()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// A gateway payment without a confirmation is never persisted.
	w = env.do(http.MethodPost, "/jobs/"+job.ID.String()+"/payments", clientToken, map[string]any{
		"amount": "250.00", "milestone": "Design",
	})
	assertError(t, w, http.StatusPaymentRequired, "payment_verification_failed")

	w = env.do(http.MethodGet, "/jobs/"+job.ID.String()+"/payments", clientToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decodeBody[struct {
		Count int `json:"count"`
	}](t, w).Count)

	w = env.do(http.MethodPost, "/jobs/"+job.ID.String()+"/payments/order", clientToken, map[string]string{"amount": "250.00"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	order := decodeBody[types.Order](t, w)

	// The confirmed order must cover exactly the escrowed amount.
	w = env.do(http.MethodPost, "/jobs/"+job.ID.String()+"/payments", clientToken, map[string]any{
		"amount": "2500.00", "milestone": "Design",
		"gateway": map[string]string{"order_id": order.ID, "payment_id": "p1", "signature": "s1"},
	})
	assertError(t, w, http.StatusPaymentRequired, "payment_verification_failed")

	w = env.do(http.MethodPost, "/jobs/"+job.ID.String()+"/payments", clientToken, map[string]any{
		"amount": "250.00", "milestone": "Design",
		"gateway": map[string]string{"order_id": order.ID, "payment_id": "p1", "signature": "s1"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	payment := decodeBody[types.Payment](t, w)
	paymentPath := "/payments/" + payment.ID.String()

	w = env.do(http.MethodPost, paymentPath+"/dispute", freelancerToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, types.PaymentDisputed, decodeBody[types.Payment](t, w).Status)

	w = env.do(http.MethodPost, paymentPath+"/release", clientToken, nil)
	assertError(t, w, http.StatusConflict, "invalid_state")

	w = env.do(http.MethodPost, paymentPath+"/refund", clientToken, nil)
	assertError(t, w, http.StatusForbidden, "forbidden")

	w = env.do(http.MethodPost, paymentPath+"/refund", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, types.PaymentRefunded, decodeBody[types.Payment](t, w).Status)

	w = env.do(http.MethodGet, "/jobs/"+job.ID.String(), clientToken, nil)
	assert.Equal(t, types.JobPaymentRefunded, decodeBody[types.Job](t, w).PaymentStatus)

	w = env.do(http.MethodGet, "/users/me", freelancerToken, nil)
	assert.True(t, decodeBody[types.User](t, w).TotalEarnings.IsZero())
}

func TestNotificationHandlers(t *testing.T) {
	env := newTestEnv(t, nil)
	_, clientToken := env.user(types.RoleClient)
	_, aToken := env.user(types.RoleFreelancer)
	_, bToken := env.user(types.RoleFreelancer)

	job := env.createJob(clientToken)
	env.propose(job.ID, aToken)
	env.propose(job.ID, bToken)

	w := env.do(http.MethodGet, "/notifications/unread-count", clientToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decodeBody[map[string]int](t, w)["unread_count"])

	w = env.do(http.MethodGet, "/notifications?unread=true&limit=1", clientToken, nil)
	inbox := decodeBody[struct {
		Notifications []types.Notification `json:"notifications"`
	}](t, w)
	require.Len(t, inbox.Notifications, 1)
	first := inbox.Notifications[0]

	// Another user's notification reads as missing.
	w = env.do(http.MethodPost, "/notifications/"+first.ID.String()+"/read", aToken, nil)
	assertError(t, w, http.StatusNotFound, "not_found")

	w = env.do(http.MethodPost, "/notifications/"+first.ID.String()+"/read", clientToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(http.MethodGet, "/notifications/unread-count", clientToken, nil)
	assert.Equal(t, 1, decodeBody[map[string]int](t, w)["unread_count"])

	w = env.do(http.MethodPost, "/notifications/read-all", clientToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decodeBody[map[string]int](t, w)["updated"])

	w = env.do(http.MethodDelete, "/notifications/"+first.ID.String(), clientToken, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(http.MethodDelete, "/notifications/"+first.ID.String(), clientToken, nil)
	assertError(t, w, http.StatusNotFound, "not_found")

	w = env.do(http.MethodDelete, "/notifications", clientToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decodeBody[map[string]int](t, w)["deleted"])
}
