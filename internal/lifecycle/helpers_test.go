package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/freelance-market/internal/gateway"
	"github.com/jonathan/freelance-market/internal/memstore"
	"github.com/jonathan/freelance-market/internal/types"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// recordingDeliverer captures deliveries so tests can assert on them.
type recordingDeliverer struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

type sentMessage struct {
	address  string
	template string
	args     map[string]string
}

func (d *recordingDeliverer) Send(_ context.Context, address, templateID string, args map[string]string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	d.sent = append(d.sent, sentMessage{address: address, template: templateID, args: args})
	return true, nil
}

func (d *recordingDeliverer) messages() []sentMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sentMessage(nil), d.sent...)
}

type fixture struct {
	t          *testing.T
	ctx        context.Context
	store      *memstore.Store
	engine     *Engine
	gateway    gateway.Gateway
	deliverer  *recordingDeliverer
	client     types.Actor
	freelancer types.Actor
	other      types.Actor
	admin      types.Actor
}

func newFixture(t *testing.T, gw gateway.Gateway) *fixture {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	if gw == nil {
		gw = gateway.NewMockGateway()
	}
	st := memstore.New()
	rec := &recordingDeliverer{}
	f := &fixture{
		t:         t,
		ctx:       context.Background(),
		store:     st,
		gateway:   gw,
		deliverer: rec,
		engine: New(st, gw,
			WithLogger(log),
			WithClock(fixedClock{t: testNow}),
			WithCurrency("USD"),
			WithDeliverer(rec),
			WithDeliveryConcurrency(2),
		),
	}
	f.client = f.user("Cora Client", types.RoleClient)
	f.freelancer = f.user("Fay Freelancer", types.RoleFreelancer)
	f.other = f.user("Otto Other", types.RoleFreelancer)
	f.admin = f.user("Ada Admin", types.RoleAdmin)
	t.Cleanup(f.engine.Notifications.Wait)
	return f
}

func (f *fixture) user(name string, role types.Role) types.Actor {
	f.t.Helper()
	u := &types.User{
		Name:   name,
		Email:  uuid.NewString() + "@example.com",
		Role:   role,
		Status: types.UserActive,
	}
	require.NoError(f.t, f.store.CreateUser(f.ctx, u))
	return types.ActorFor(u)
}

func (f *fixture) jobInput() types.CreateJobInput {
	return types.CreateJobInput{
		Title:       "Build a landing page",
		Description: "Responsive landing page for a product launch",
		Category:    "web-development",
		Budget:      decimal.NewFromInt(1000),
		BudgetType:  types.BudgetFixed,
		Duration:    "2 weeks",
		Experience:  types.ExperienceIntermediate,
		Skills:      []string{"html", "css"},
	}
}

func (f *fixture) openJob() *types.Job {
	f.t.Helper()
	job, err := f.engine.Jobs.Create(f.ctx, f.client, f.jobInput())
	require.NoError(f.t, err)
	return job
}

func (f *fixture) propose(job *types.Job, who types.Actor) *types.Proposal {
	f.t.Helper()
	p, err := f.engine.Proposals.Create(f.ctx, who, job.ID, types.CreateProposalInput{
		CoverLetter:      "I have shipped many landing pages like this one.",
		ProposedBudget:   decimal.NewFromInt(900),
		ProposedDuration: "10 days",
	})
	require.NoError(f.t, err)
	return p
}

// assignedJob returns a job assigned to f.freelancer, with a rejected bid from f.other.
func (f *fixture) assignedJob() *types.Job {
	f.t.Helper()
	job := f.openJob()
	f.propose(job, f.freelancer)
	f.propose(job, f.other)
	job, outcome, err := f.engine.Jobs.AssignFreelancer(f.ctx, f.client, job.ID, f.freelancer.ID)
	require.NoError(f.t, err)
	require.Equal(f.t, OutcomeApplied, outcome)
	return job
}

func (f *fixture) fund(job *types.Job, amount string) *types.Payment {
	f.t.Helper()
	p, err := f.engine.Escrow.Fund(f.ctx, f.client, f.fundInput(job, amount))
	require.NoError(f.t, err)
	return p
}

// fundInput opens a matching gateway order for job and returns a funding
// request confirming it.
func (f *fixture) fundInput(job *types.Job, amount string) types.FundInput {
	f.t.Helper()
	value := decimal.RequireFromString(amount)
	order, err := f.gateway.CreateOrder(f.ctx, value, "USD", job.ID.String())
	require.NoError(f.t, err)
	return types.FundInput{
		JobID:     job.ID,
		Amount:    value,
		Milestone: "Final delivery",
		Gateway: &types.GatewayConfirmation{
			OrderID:   order.ID,
			PaymentID: "pay_" + uuid.NewString(),
			Signature: "sig",
		},
	}
}

// fakeProcessor is a REST payment processor that keeps the orders it opens.
type fakeProcessor struct {
	*httptest.Server
	mu     sync.Mutex
	orders map[string][]byte
}

func newFakeProcessor(t *testing.T) *fakeProcessor {
	t.Helper()
	p := &fakeProcessor{orders: make(map[string][]byte)}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
			Receipt  string `json:"receipt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		id := "order_" + uuid.NewString()
		doc, _ := json.Marshal(map[string]any{
			"id": id, "amount": req.Amount, "currency": req.Currency, "receipt": req.Receipt, "status": "created",
		})
		p.mu.Lock()
		p.orders[id] = doc
		p.mu.Unlock()
		_, _ = w.Write(doc)
	})
	mux.HandleFunc("GET /orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		doc, ok := p.orders[r.PathValue("id")]
		p.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(doc)
	})

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

// gateway returns an HTTPGateway for the processor signing with "secret".
func (p *fakeProcessor) gateway() *gateway.HTTPGateway {
	return gateway.NewHTTPGateway(p.URL, "key", "secret", p.Client())
}

func (f *fixture) notifications(who types.Actor) []types.Notification {
	f.t.Helper()
	out, err := f.engine.Notifications.List(f.ctx, who, types.NotificationFilter{})
	require.NoError(f.t, err)
	return out
}

func (f *fixture) mustUser(id uuid.UUID) *types.User {
	f.t.Helper()
	u, err := f.store.GetUser(f.ctx, id)
	require.NoError(f.t, err)
	require.NotNil(f.t, u)
	return u
}

func requireKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	require.Error(t, err)
	var le *Error
	require.True(t, errors.As(err, &le), "expected lifecycle error, got %T: %v", err, err)
	require.Equal(t, kind, le.Kind, le.Error())
}
