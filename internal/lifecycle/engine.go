package lifecycle

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/freelance-market/internal/delivery"
	"github.com/jonathan/freelance-market/internal/gateway"
	"github.com/jonathan/freelance-market/internal/metrics"
	"github.com/jonathan/freelance-market/internal/store"
	"github.com/jonathan/freelance-market/internal/types"
)

// Clock supplies the timestamps stamped on transitions.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// DefaultCurrency is used when no currency option is given.
const DefaultCurrency = "INR"

type options struct {
	log         *logrus.Logger
	clock       Clock
	currency    string
	deliverer   delivery.Deliverer
	concurrency int64
	templates   map[types.NotificationType]types.NotificationTemplate
}

// Option configures an Engine.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(log *logrus.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithCurrency sets the currency of gateway orders and payments.
func WithCurrency(currency string) Option {
	return func(o *options) {
		if currency != "" {
			o.currency = currency
		}
	}
}

// WithDeliverer sets where notifications are pushed after they are recorded.
func WithDeliverer(d delivery.Deliverer) Option {
	return func(o *options) { o.deliverer = d }
}

// WithDeliveryConcurrency bounds the number of in-flight deliveries.
func WithDeliveryConcurrency(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithTemplates overrides notification templates by type.
func WithTemplates(t map[types.NotificationType]types.NotificationTemplate) Option {
	return func(o *options) { o.templates = t }
}

// Engine bundles the lifecycle components over one store.
type Engine struct {
	Jobs          *JobManager
	Proposals     *ProposalManager
	Escrow        *EscrowLedger
	Notifications *Dispatcher
	Reconciler    *Reconciler
}

// New wires every lifecycle component.
func New(st store.Store, gw gateway.Gateway, opts ...Option) *Engine {
	o := options{
		clock:       systemClock{},
		currency:    DefaultCurrency,
		deliverer:   delivery.Nop{},
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logrus.StandardLogger()
	}

	notify := NewDispatcher(st, o.deliverer, o.log, o.concurrency, o.templates)
	b := &base{
		store:    st,
		log:      o.log,
		clock:    o.clock,
		notify:   notify,
		validate: types.NewValidator(),
	}
	return &Engine{
		Jobs:          &JobManager{base: b},
		Proposals:     &ProposalManager{base: b},
		Escrow:        &EscrowLedger{base: b, gateway: gw, currency: o.currency},
		Notifications: notify,
		Reconciler:    &Reconciler{base: b},
	}
}

// base carries the dependencies shared by the managers.
type base struct {
	store    store.Store
	log      *logrus.Logger
	clock    Clock
	notify   *Dispatcher
	validate *validator.Validate
}

func (b *base) inTx(ctx context.Context, fn func(tx store.Store) error) error {
	return unavailable("transaction failed", b.store.InTx(ctx, fn))
}

func (b *base) checkInput(v any) error {
	if err := b.validate.Struct(v); err != nil {
		field, msg := types.FirstValidationError(err)
		return validationError("%s: %s", field, msg)
	}
	return nil
}

// observe records the operation in metrics and logs the outcome.
func (b *base) observe(entity, op string, actor types.Actor, outcome Outcome, err error) {
	result := string(outcome)
	if err != nil {
		result = string(KindOf(err))
		if result == "" {
			result = "error"
		}
	}
	metrics.RecordTransition(entity, op, result)

	entry := b.log.WithFields(logrus.Fields{
		"entity":   entity,
		"op":       op,
		"actor_id": actor.ID,
		"outcome":  result,
	})
	switch {
	case IsKind(err, KindUnavailable):
		entry.WithError(err).Error("lifecycle operation failed")
	case err != nil:
		entry.Debug("lifecycle operation rejected")
	default:
		entry.Debug("lifecycle operation applied")
	}
}

func requireActive(actor types.Actor) error {
	if actor.IsSuspended() {
		return forbidden("account is suspended")
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}
