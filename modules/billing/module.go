package billing

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meedprogram/meedkit/handler"
	"github.com/meedprogram/meedkit/pkg/binder"
	"github.com/meedprogram/meedkit/pkg/credits"
	"github.com/meedprogram/meedkit/pkg/delegation"
	"github.com/meedprogram/meedkit/pkg/logger"
	"github.com/meedprogram/meedkit/pkg/subscription"
	"github.com/meedprogram/meedkit/pkg/treasury"
)

// Module exposes the subscription service, the credit gate and the treasury
// over HTTP.
type Module struct {
	subs        *subscription.Service
	gate        *credits.Gate
	treasury    *treasury.Treasury
	delegations delegation.Manager
	log         *slog.Logger
	now         func() time.Time
	onError     handler.ErrorHandler[handler.Context]
}

// Option configures a Module.
type Option func(*Module)

// WithDelegations exposes the admin delegation routes backed by mgr. Pass the
// same registry the subscription service and credit gate consult.
func WithDelegations(mgr delegation.Manager) Option {
	return func(m *Module) { m.delegations = mgr }
}

// WithLogger sets the logger for failed requests. Nil keeps the discard logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Module) {
		if log != nil {
			m.log = log
		}
	}
}

// WithClock sets the clock used to derive subscription states in responses.
func WithClock(now func() time.Time) Option {
	return func(m *Module) {
		if now != nil {
			m.now = now
		}
	}
}

// New creates the billing module. Panics when a dependency is nil.
func New(subs *subscription.Service, gate *credits.Gate, tr *treasury.Treasury, opts ...Option) *Module {
	if subs == nil || gate == nil || tr == nil {
		panic("billing: subscription service, credit gate and treasury are required")
	}
	m := &Module{
		subs:     subs,
		gate:     gate,
		treasury: tr,
		log:      logger.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(logger.Component("billing"))
	m.onError = handler.NewErrorHandler(m.log, HTTPError)
	return m
}

// Handle returns the module router. Mount it at the service root:
//
//	r := chi.NewRouter()
//	r.Use(requestid.Middleware, m.Middleware)
//	r.Mount("/", billing.New(subs, gate, tr).Handle())
func (m *Module) Handle() http.Handler {
	r := chi.NewRouter()
	r.Use(Identify)

	r.Route("/plans", func(r chi.Router) {
		r.Get("/", route(m, m.listPlans))
		r.Get("/{plan}/price", route(m, m.planPrice))
		r.Put("/{plan}/price", guarded(m, m.editPlanPrice))
	})

	r.Route("/subscriptions", func(r chi.Router) {
		r.Post("/", guarded(m, m.subscribe))
		r.Post("/trial", guarded(m, m.startTrial))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", route(m, m.getSubscription))
			r.Get("/expires-at", route(m, m.expiresAt))
			r.Get("/renewable", route(m, m.renewable))
			r.Get("/quote", route(m, m.quote))
			r.Post("/renew", guarded(m, m.renew))
			r.Post("/plan", guarded(m, m.changePlan))
		})
	})

	r.Route("/subscribers/{address}", func(r chi.Router) {
		r.Get("/", route(m, m.getSubscriber))
		r.Get("/plan", route(m, m.subscriberPlan))
		r.Get("/paid", route(m, m.isPaid))
		if m.delegations != nil {
			r.Get("/admins/{admin}", route(m, m.delegated))
			r.Put("/admins/{admin}", guarded(m, m.addAdmin))
			r.Delete("/admins/{admin}", guarded(m, m.removeAdmin))
		}
	})

	if m.delegations != nil {
		r.Post("/admins/opt-out", guarded(m, m.optOut))
		r.Post("/admins/opt-in", guarded(m, m.optIn))
	}

	r.Route("/credits/{address}", func(r chi.Router) {
		r.Get("/", route(m, m.balance))
		r.Get("/history", route(m, m.history))
		r.Put("/", guarded(m, m.setBalance))
		r.Post("/grant", guarded(m, m.grant))
		r.Post("/deduct", guarded(m, m.deduct))
	})

	r.Route("/topups", func(r chi.Router) {
		r.Get("/", route(m, m.listTopUps))
		r.Put("/{id}", guarded(m, m.editTopUp))
		r.Post("/{id}/buy", guarded(m, m.buyCredits))
	})

	r.Route("/treasury", func(r chi.Router) {
		r.Get("/revenue", route(m, m.revenue))
		r.Post("/withdraw", guarded(m, m.withdraw))
	})

	return r
}

// route binds path, query and JSON body into R and renders failures through
// the module error handler.
func route[R any](m *Module, h handler.HandlerFunc[handler.Context, R], decorators ...handler.Decorator[handler.Context, R]) http.HandlerFunc {
	return handler.Wrap(h,
		handler.WithBinders[handler.Context, R](binder.Path(chi.URLParam), binder.Query(), binder.JSON()),
		handler.WithErrorHandler[handler.Context, R](m.onError),
		handler.WithDecorators(decorators...),
	)
}

// guarded is route for operations that act on behalf of the caller.
func guarded[R any](m *Module, h handler.HandlerFunc[handler.Context, R]) http.HandlerFunc {
	return route(m, h, requireCaller[R])
}
