package lifecycle

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/jonathan/freelance-market/internal/delivery"
	"github.com/jonathan/freelance-market/internal/metrics"
	"github.com/jonathan/freelance-market/internal/store"
	"github.com/jonathan/freelance-market/internal/types"
)

// DefaultTemplates renders every notification type.
var DefaultTemplates = map[types.NotificationType]types.NotificationTemplate{
	types.NotifyJobAssigned: {
		Title:     "You've been hired",
		Message:   "You were assigned to \"{job_title}\".",
		ActionURL: "/jobs/{job_id}",
	},
	types.NotifyJobCompleted: {
		Title:     "Job completed",
		Message:   "The client marked \"{job_title}\" as completed.",
		ActionURL: "/jobs/{job_id}",
	},
	types.NotifyJobCancelled: {
		Title:     "Job cancelled",
		Message:   "\"{job_title}\" was cancelled by the client.",
		ActionURL: "/jobs/{job_id}",
	},
	types.NotifyProposalReceived: {
		Title:     "New proposal",
		Message:   "You received a new proposal on \"{job_title}\".",
		ActionURL: "/jobs/{job_id}/proposals",
	},
	types.NotifyProposalShortlisted: {
		Title:     "Proposal shortlisted",
		Message:   "Your proposal for \"{job_title}\" was shortlisted.",
		ActionURL: "/proposals/{proposal_id}",
	},
	types.NotifyProposalRejected: {
		Title:     "Proposal not selected",
		Message:   "Your proposal for \"{job_title}\" was not selected.",
		ActionURL: "/proposals/{proposal_id}",
	},
	types.NotifyPaymentReceived: {
		Title:     "Payment in escrow",
		Message:   "{amount} {currency} was placed in escrow for \"{job_title}\".",
		ActionURL: "/payments/{payment_id}",
	},
	types.NotifyPaymentReleased: {
		Title:     "Payment released",
		Message:   "{freelancer_amount} {currency} was released to you for \"{job_title}\".",
		ActionURL: "/payments/{payment_id}",
	},
	types.NotifyPaymentRefunded: {
		Title:     "Payment refunded",
		Message:   "{amount} {currency} held for \"{job_title}\" was refunded.",
		ActionURL: "/payments/{payment_id}",
	},
	types.NotifyPaymentDisputed: {
		Title:     "Payment disputed",
		Message:   "The escrow payment for \"{job_title}\" is under dispute.",
		ActionURL: "/payments/{payment_id}",
	},
}

// NotificationInput describes one notification to emit.
type NotificationInput struct {
	UserID uuid.UUID
	Type   types.NotificationType
	Refs   types.NotificationRefs
	Vars   map[string]string
}

// Dispatcher records notifications and pushes them to a Deliverer in the
// background. Neither step can fail the transition that triggered it.
type Dispatcher struct {
	store     store.NotificationStore
	deliverer delivery.Deliverer
	log       *logrus.Logger
	templates map[types.NotificationType]types.NotificationTemplate
	sem       *semaphore.Weighted
	wg        sync.WaitGroup
}

// NewDispatcher returns a dispatcher with at most concurrency deliveries in
// flight. overrides replace DefaultTemplates per type.
func NewDispatcher(st store.NotificationStore, d delivery.Deliverer, log *logrus.Logger, concurrency int64, overrides map[types.NotificationType]types.NotificationTemplate) *Dispatcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	if d == nil {
		d = delivery.Nop{}
	}
	templates := make(map[types.NotificationType]types.NotificationTemplate, len(DefaultTemplates))
	for k, v := range DefaultTemplates {
		templates[k] = v
	}
	for k, v := range overrides {
		templates[k] = v
	}
	return &Dispatcher{
		store:     st,
		deliverer: d,
		log:       log,
		templates: templates,
		sem:       semaphore.NewWeighted(concurrency),
	}
}

// Emit persists the notification and schedules delivery. A failed write is
// logged and returns nil.
func (d *Dispatcher) Emit(ctx context.Context, in NotificationInput) *types.Notification {
	ctx = context.WithoutCancel(ctx)
	n := d.render(in)

	if err := d.store.CreateNotification(ctx, n); err != nil {
		metrics.RecordNotification(string(in.Type), false)
		d.log.WithError(err).WithFields(logrus.Fields{
			"user_id": in.UserID,
			"type":    in.Type,
		}).Error("failed to record notification")
		return nil
	}
	metrics.RecordNotification(string(in.Type), true)

	d.deliver(ctx, *n)
	return n
}

func (d *Dispatcher) deliver(ctx context.Context, n types.Notification) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer d.sem.Release(1)

		sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		args := map[string]string{
			"notification_id": n.ID.String(),
			"title":           n.Title,
			"message":         n.Message,
		}
		if n.ActionURL != "" {
			args["action_url"] = n.ActionURL
		}
		ok, err := d.deliverer.Send(sendCtx, n.UserID.String(), string(n.Type), args)
		metrics.RecordDelivery(ok && err == nil)
		if err != nil || !ok {
			d.log.WithError(err).WithFields(logrus.Fields{
				"notification_id": n.ID,
				"user_id":         n.UserID,
				"accepted":        ok,
			}).Warn("notification delivery failed")
		}
	}()
}

// Wait blocks until every scheduled delivery has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) render(in NotificationInput) *types.Notification {
	vars := map[string]string{}
	for k, v := range in.Vars {
		vars[k] = v
	}
	for k, id := range map[string]*uuid.UUID{
		"job_id":      in.Refs.JobID,
		"proposal_id": in.Refs.ProposalID,
		"payment_id":  in.Refs.PaymentID,
	} {
		if id != nil {
			vars[k] = id.String()
		}
	}
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)

	tmpl := d.templates[in.Type]
	return &types.Notification{
		UserID:     in.UserID,
		Type:       in.Type,
		Title:      r.Replace(tmpl.Title),
		Message:    r.Replace(tmpl.Message),
		ActionURL:  r.Replace(tmpl.ActionURL),
		JobID:      in.Refs.JobID,
		ProposalID: in.Refs.ProposalID,
		PaymentID:  in.Refs.PaymentID,
		ActorID:    in.Refs.ActorID,
	}
}

// List returns the actor's notifications, newest first.
func (d *Dispatcher) List(ctx context.Context, actor types.Actor, f types.NotificationFilter) ([]types.Notification, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	out, err := d.store.ListNotifications(ctx, actor.ID, f)
	return out, unavailable("failed to list notifications", err)
}

// UnreadCount returns how many of the actor's notifications are unread.
func (d *Dispatcher) UnreadCount(ctx context.Context, actor types.Actor) (int, error) {
	n, err := d.store.CountUnreadNotifications(ctx, actor.ID)
	return n, unavailable("failed to count notifications", err)
}

// MarkRead marks one of the actor's notifications read. Marking an already
// read notification succeeds.
func (d *Dispatcher) MarkRead(ctx context.Context, actor types.Actor, id uuid.UUID) error {
	ok, err := d.store.MarkNotificationRead(ctx, actor.ID, id, time.Now().UTC())
	if err != nil {
		return unavailable("failed to mark notification read", err)
	}
	if !ok {
		return notFound("notification")
	}
	return nil
}

// MarkAllRead marks every unread notification of the actor read.
func (d *Dispatcher) MarkAllRead(ctx context.Context, actor types.Actor) (int, error) {
	n, err := d.store.MarkAllNotificationsRead(ctx, actor.ID, time.Now().UTC())
	return n, unavailable("failed to mark notifications read", err)
}

// Delete removes one of the actor's notifications.
func (d *Dispatcher) Delete(ctx context.Context, actor types.Actor, id uuid.UUID) error {
	ok, err := d.store.DeleteNotification(ctx, actor.ID, id)
	if err != nil {
		return unavailable("failed to delete notification", err)
	}
	if !ok {
		return notFound("notification")
	}
	return nil
}

// Clear removes every notification of the actor.
func (d *Dispatcher) Clear(ctx context.Context, actor types.Actor) (int, error) {
	n, err := d.store.DeleteAllNotifications(ctx, actor.ID)
	return n, unavailable("failed to clear notifications", err)
}
