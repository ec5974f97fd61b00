// Package memstore is an in-memory implementation of store.Store. It is safe
// for concurrent use and intended for tests and local development.
package memstore

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jonathan/freelance-market/internal/store"
	"github.com/jonathan/freelance-market/internal/types"
)

var _ store.Store = (*Store)(nil)

type state struct {
	users         map[uuid.UUID]*types.User
	jobs          map[uuid.UUID]*types.Job
	proposals     map[uuid.UUID]*types.Proposal
	payments      map[uuid.UUID]*types.Payment
	notifications map[uuid.UUID]*types.Notification
}

func newState() *state {
	return &state{
		users:         make(map[uuid.UUID]*types.User),
		jobs:          make(map[uuid.UUID]*types.Job),
		proposals:     make(map[uuid.UUID]*types.Proposal),
		payments:      make(map[uuid.UUID]*types.Payment),
		notifications: make(map[uuid.UUID]*types.Notification),
	}
}

func cloneMap[T any](in map[uuid.UUID]*T) map[uuid.UUID]*T {
	out := make(map[uuid.UUID]*T, len(in))
	for k, v := range in {
		cp := *v
		out[k] = &cp
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		users:         cloneMap(s.users),
		jobs:          cloneMap(s.jobs),
		proposals:     cloneMap(s.proposals),
		payments:      cloneMap(s.payments),
		notifications: cloneMap(s.notifications),
	}
}

// Store is the in-memory store. A transactional view shares the root's state
// and lock; it holds the write lock for the whole transaction.
type Store struct {
	mu   *sync.RWMutex
	data **state
	tx   bool

	// faults is shared with transaction views so injected failures apply
	// inside InTx too.
	faults *faults
}

type faults struct {
	notifications bool
	writes        map[string]error
}

// New returns an empty Store.
func New() *Store {
	st := newState()
	return &Store{mu: &sync.RWMutex{}, data: &st, faults: &faults{writes: make(map[string]error)}}
}

// FailNotifications toggles injected failures of CreateNotification.
func (m *Store) FailNotifications(fail bool) {
	unlock := m.lock()
	defer unlock()
	m.faults.notifications = fail
}

// FailWrite makes the named write method return err. A nil err clears it.
func (m *Store) FailWrite(method string, err error) {
	unlock := m.lock()
	defer unlock()
	if err == nil {
		delete(m.faults.writes, method)
		return
	}
	m.faults.writes[method] = err
}

// injected must be called with the lock held.
func (m *Store) injected(method string) error {
	return m.faults.writes[method]
}

func (m *Store) lock() func() {
	if m.tx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *Store) rlock() func() {
	if m.tx {
		return func() {}
	}
	m.mu.RLock()
	return m.mu.RUnlock
}

func (m *Store) st() *state { return *m.data }

// InTx serialises fn against every other writer and restores the pre-transaction
// snapshot when fn fails.
func (m *Store) InTx(ctx context.Context, fn func(tx store.Store) error) error {
	if m.tx {
		return fn(m)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st().clone()
	view := &Store{mu: m.mu, data: m.data, tx: true, faults: m.faults}
	if err := fn(view); err != nil {
		*m.data = snapshot
		return err
	}
	return nil
}

// Ping always succeeds.
func (m *Store) Ping(_ context.Context) error { return nil }

// ──────────────────────────────────────────────────
// Users
// ──────────────────────────────────────────────────

func (m *Store) CreateUser(_ context.Context, u *types.User) error {
	unlock := m.lock()
	defer unlock()

	for _, existing := range m.st().users {
		if strings.EqualFold(existing.Email, u.Email) {
			return store.ErrDuplicate
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	m.st().users[u.ID] = &cp
	return nil
}

func (m *Store) GetUser(_ context.Context, id uuid.UUID) (*types.User, error) {
	unlock := m.rlock()
	defer unlock()

	u, ok := m.st().users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *Store) GetUserByEmail(_ context.Context, email string) (*types.User, error) {
	unlock := m.rlock()
	defer unlock()

	for _, u := range m.st().users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Store) IncrementUserTotals(_ context.Context, id uuid.UUID, earnings, spent decimal.Decimal) error {
	unlock := m.lock()
	defer unlock()
	if err := m.injected("IncrementUserTotals"); err != nil {
		return err
	}

	u, ok := m.st().users[id]
	if !ok {
		return nil
	}
	u.TotalEarnings = u.TotalEarnings.Add(earnings)
	u.TotalSpent = u.TotalSpent.Add(spent)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// ──────────────────────────────────────────────────
// Jobs
// ──────────────────────────────────────────────────

func copyJob(j *types.Job) types.Job {
	cp := *j
	cp.Skills = slices.Clone(j.Skills)
	if j.AssignedFreelancer != nil {
		f := *j.AssignedFreelancer
		cp.AssignedFreelancer = &f
	}
	return cp
}

func (m *Store) CreateJob(_ context.Context, j *types.Job) error {
	unlock := m.lock()
	defer unlock()

	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if _, exists := m.st().jobs[j.ID]; exists {
		return store.ErrDuplicate
	}
	if j.ExternalID != "" {
		for _, existing := range m.st().jobs {
			if existing.Source == j.Source && existing.ExternalID == j.ExternalID {
				return store.ErrDuplicate
			}
		}
	}
	now := time.Now().UTC()
	j.CreatedAt, j.UpdatedAt = now, now
	cp := copyJob(j)
	m.st().jobs[j.ID] = &cp
	return nil
}

func (m *Store) GetJob(_ context.Context, id uuid.UUID) (*types.Job, error) {
	unlock := m.rlock()
	defer unlock()

	j, ok := m.st().jobs[id]
	if !ok {
		return nil, nil
	}
	cp := copyJob(j)
	return &cp, nil
}

func (m *Store) ListJobs(_ context.Context, f types.JobFilter) ([]types.Job, error) {
	unlock := m.rlock()
	defer unlock()

	out := make([]types.Job, 0)
	for _, j := range m.st().jobs {
		if f.Status != nil && j.Status != *f.Status {
			continue
		}
		if f.ClientID != nil && j.ClientID != *f.ClientID {
			continue
		}
		if f.Freelancer != nil && (j.AssignedFreelancer == nil || *j.AssignedFreelancer != *f.Freelancer) {
			continue
		}
		if f.Category != "" && j.Category != f.Category {
			continue
		}
		out = append(out, copyJob(j))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return page(out, f.Offset, f.Limit), nil
}

func (m *Store) UpdateJobFields(_ context.Context, j *types.Job, from []types.JobStatus) (bool, error) {
	unlock := m.lock()
	defer unlock()

	cur, ok := m.st().jobs[j.ID]
	if !ok || !slices.Contains(from, cur.Status) {
		return false, nil
	}
	cur.Title = j.Title
	cur.Description = j.Description
	cur.Category = j.Category
	cur.Budget = j.Budget
	cur.BudgetType = j.BudgetType
	cur.Duration = j.Duration
	cur.Experience = j.Experience
	cur.Skills = slices.Clone(j.Skills)
	cur.Location = j.Location
	cur.UpdatedAt = time.Now().UTC()
	j.UpdatedAt = cur.UpdatedAt
	return true, nil
}

func (m *Store) CASJobStatus(_ context.Context, id uuid.UUID, from []types.JobStatus, to types.JobStatus, change types.JobStatusChange) (bool, error) {
	unlock := m.lock()
	defer unlock()
	if err := m.injected("CASJobStatus"); err != nil {
		return false, err
	}

	cur, ok := m.st().jobs[id]
	if !ok || !slices.Contains(from, cur.Status) {
		return false, nil
	}
	cur.Status = to
	if change.AssignedFreelancer != nil {
		f := *change.AssignedFreelancer
		cur.AssignedFreelancer = &f
	}
	if change.CompletedAt != nil {
		at := *change.CompletedAt
		cur.CompletedAt = &at
	}
	cur.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *Store) SetJobPaymentStatus(_ context.Context, id uuid.UUID, status types.JobPaymentStatus) error {
	unlock := m.lock()
	defer unlock()
	if err := m.injected("SetJobPaymentStatus"); err != nil {
		return err
	}

	if j, ok := m.st().jobs[id]; ok {
		j.PaymentStatus = status
		j.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *Store) IncrementApplicants(_ context.Context, id uuid.UUID) (bool, error) {
	unlock := m.lock()
	defer unlock()
	if err := m.injected("IncrementApplicants"); err != nil {
		return false, err
	}

	j, ok := m.st().jobs[id]
	if !ok || j.Status != types.JobStatusOpen {
		return false, nil
	}
	j.ApplicantsCount++
	return true, nil
}

func (m *Store) DeleteJob(_ context.Context, id uuid.UUID) (bool, error) {
	unlock := m.lock()
	defer unlock()

	if _, ok := m.st().jobs[id]; !ok {
		return false, nil
	}
	delete(m.st().jobs, id)
	for pid, p := range m.st().proposals {
		if p.JobID == id {
			delete(m.st().proposals, pid)
		}
	}
	return true, nil
}

// ──────────────────────────────────────────────────
// Proposals
// ──────────────────────────────────────────────────

func stampProposal(p *types.Proposal, to types.ProposalStatus, at time.Time) {
	t := at
	switch to {
	case types.ProposalShortlisted:
		p.ShortlistedAt = &t
	case types.ProposalAccepted:
		p.AcceptedAt = &t
	case types.ProposalRejected:
		p.RejectedAt = &t
	case types.ProposalWithdrawn:
		p.WithdrawnAt = &t
	}
	p.Status = to
	p.UpdatedAt = at
}

func (m *Store) CreateProposal(_ context.Context, p *types.Proposal) error {
	unlock := m.lock()
	defer unlock()
	if err := m.injected("CreateProposal"); err != nil {
		return err
	}

	for _, existing := range m.st().proposals {
		if existing.JobID == p.JobID && existing.FreelancerID == p.FreelancerID {
			return store.ErrDuplicate
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	m.st().proposals[p.ID] = &cp
	return nil
}

func (m *Store) GetProposal(_ context.Context, id uuid.UUID) (*types.Proposal, error) {
	unlock := m.rlock()
	defer unlock()

	p, ok := m.st().proposals[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *Store) GetProposalByJobAndFreelancer(_ context.Context, jobID, freelancerID uuid.UUID) (*types.Proposal, error) {
	unlock := m.rlock()
	defer unlock()

	for _, p := range m.st().proposals {
		if p.JobID == jobID && p.FreelancerID == freelancerID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Store) listProposals(match func(*types.Proposal) bool) []types.Proposal {
	out := make([]types.Proposal, 0)
	for _, p := range m.st().proposals {
		if match(p) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out
}

func (m *Store) ListProposalsByJob(_ context.Context, jobID uuid.UUID) ([]types.Proposal, error) {
	unlock := m.rlock()
	defer unlock()
	return m.listProposals(func(p *types.Proposal) bool { return p.JobID == jobID }), nil
}

func (m *Store) ListProposalsByFreelancer(_ context.Context, freelancerID uuid.UUID) ([]types.Proposal, error) {
	unlock := m.rlock()
	defer unlock()
	return m.listProposals(func(p *types.Proposal) bool { return p.FreelancerID == freelancerID }), nil
}

func (m *Store) CASProposalStatus(_ context.Context, id uuid.UUID, from []types.ProposalStatus, to types.ProposalStatus, at time.Time) (bool, error) {
	unlock := m.lock()
	defer unlock()
	if err := m.injected("CASProposalStatus"); err != nil {
		return false, err
	}

	cur, ok := m.st().proposals[id]
	if !ok || !slices.Contains(from, cur.Status) {
		return false, nil
	}
	stampProposal(cur, to, at)
	return true, nil
}

func (m *Store) RejectOtherProposals(_ context.Context, jobID, keep uuid.UUID, at time.Time) ([]types.Proposal, error) {
	unlock := m.lock()
	defer unlock()
	if err := m.injected("RejectOtherProposals"); err != nil {
		return nil, err
	}

	rejectable := types.ProposalSources(types.ProposalOpReject)
	var rejected []types.Proposal
	for _, p := range m.st().proposals {
		if p.JobID != jobID || p.ID == keep || !slices.Contains(rejectable, p.Status) {
			continue
		}
		stampProposal(p, types.ProposalRejected, at)
		rejected = append(rejected, *p)
	}
	return rejected, nil
}

// ──────────────────────────────────────────────────
// Payments
// ──────────────────────────────────────────────────

func (m *Store) CreatePayment(_ context.Context, p *types.Payment) error {
	unlock := m.lock()
	defer unlock()
	if err := m.injected("CreatePayment"); err != nil {
		return err
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if _, exists := m.st().payments[p.ID]; exists {
		return store.ErrDuplicate
	}
	if p.GatewayPaymentID != "" {
		for _, existing := range m.st().payments {
			if existing.GatewayPaymentID == p.GatewayPaymentID {
				return store.ErrDuplicate
			}
		}
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	cp := *p
	m.st().payments[p.ID] = &cp
	return nil
}

func (m *Store) GetPayment(_ context.Context, id uuid.UUID) (*types.Payment, error) {
	unlock := m.rlock()
	defer unlock()

	p, ok := m.st().payments[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *Store) ListPaymentsByJob(_ context.Context, jobID uuid.UUID) ([]types.Payment, error) {
	unlock := m.rlock()
	defer unlock()

	out := make([]types.Payment, 0)
	for _, p := range m.st().payments {
		if p.JobID == jobID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (m *Store) CASPaymentStatus(_ context.Context, id uuid.UUID, from []types.PaymentStatus, to types.PaymentStatus, at time.Time) (bool, error) {
	unlock := m.lock()
	defer unlock()
	if err := m.injected("CASPaymentStatus"); err != nil {
		return false, err
	}

	cur, ok := m.st().payments[id]
	if !ok || !slices.Contains(from, cur.Status) {
		return false, nil
	}
	t := at
	switch to {
	case types.PaymentEscrow:
		cur.EscrowedAt = &t
	case types.PaymentReleased:
		cur.ReleasedAt = &t
	case types.PaymentRefunded:
		cur.RefundedAt = &t
	case types.PaymentDisputed:
		cur.DisputedAt = &t
	}
	cur.Status = to
	cur.UpdatedAt = at
	return true, nil
}

// ──────────────────────────────────────────────────
// Notifications
// ──────────────────────────────────────────────────

func (m *Store) CreateNotification(_ context.Context, n *types.Notification) error {
	unlock := m.lock()
	defer unlock()

	if m.faults.notifications {
		return errInjected
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.CreatedAt = time.Now().UTC()
	cp := *n
	m.st().notifications[n.ID] = &cp
	return nil
}

func (m *Store) ListNotifications(_ context.Context, userID uuid.UUID, f types.NotificationFilter) ([]types.Notification, error) {
	unlock := m.rlock()
	defer unlock()

	out := make([]types.Notification, 0)
	for _, n := range m.st().notifications {
		if n.UserID != userID || (f.UnreadOnly && n.IsRead) {
			continue
		}
		out = append(out, *n)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return page(out, f.Offset, f.Limit), nil
}

func (m *Store) CountUnreadNotifications(_ context.Context, userID uuid.UUID) (int, error) {
	unlock := m.rlock()
	defer unlock()

	count := 0
	for _, n := range m.st().notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (m *Store) MarkNotificationRead(_ context.Context, userID, id uuid.UUID, at time.Time) (bool, error) {
	unlock := m.lock()
	defer unlock()

	n, ok := m.st().notifications[id]
	if !ok || n.UserID != userID {
		return false, nil
	}
	if !n.IsRead {
		t := at
		n.IsRead, n.ReadAt = true, &t
	}
	return true, nil
}

func (m *Store) MarkAllNotificationsRead(_ context.Context, userID uuid.UUID, at time.Time) (int, error) {
	unlock := m.lock()
	defer unlock()

	count := 0
	for _, n := range m.st().notifications {
		if n.UserID == userID && !n.IsRead {
			t := at
			n.IsRead, n.ReadAt = true, &t
			count++
		}
	}
	return count, nil
}

func (m *Store) DeleteNotification(_ context.Context, userID, id uuid.UUID) (bool, error) {
	unlock := m.lock()
	defer unlock()

	n, ok := m.st().notifications[id]
	if !ok || n.UserID != userID {
		return false, nil
	}
	delete(m.st().notifications, id)
	return true, nil
}

func (m *Store) DeleteAllNotifications(_ context.Context, userID uuid.UUID) (int, error) {
	unlock := m.lock()
	defer unlock()

	count := 0
	for id, n := range m.st().notifications {
		if n.UserID == userID {
			delete(m.st().notifications, id)
			count++
		}
	}
	return count, nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

var errInjected = errors.New("memstore: injected notification failure")
