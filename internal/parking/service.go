package parking

import (
	"context"
	"time"

	"github.com/effectivemobile/parking/internal/auth"
	"github.com/effectivemobile/parking/internal/gateway"
	"github.com/effectivemobile/parking/internal/metrics"
	"github.com/effectivemobile/parking/internal/model"
	"github.com/effectivemobile/parking/internal/notify"
	"github.com/effectivemobile/parking/internal/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Notifier interface {
	Dispatch(msg notify.Message)
}

type AvailabilityCache interface {
	Get(ctx context.Context, lotID uuid.UUID) (map[model.SpotStatus]int, bool, error)
	Set(ctx context.Context, lotID uuid.UUID, counts map[model.SpotStatus]int) error
	Invalidate(ctx context.Context, lotID uuid.UUID) error
}

// Service is the parking occupancy and billing engine.
type Service struct {
	store          store.Store
	gateway        gateway.Gateway
	notifier       Notifier
	cache          AvailabilityCache
	metrics        *metrics.Metrics
	log            *logrus.Logger
	loc            *time.Location
	paymentMethod  string
	gatewayTimeout time.Duration
}

type Option func(*Service)

func WithCache(c AvailabilityCache) Option { return func(s *Service) { s.cache = c } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

func WithPaymentMethod(method string) Option { return func(s *Service) { s.paymentMethod = method } }

func WithGatewayTimeout(d time.Duration) Option { return func(s *Service) { s.gatewayTimeout = d } }

func NewService(st store.Store, gw gateway.Gateway, n Notifier, log *logrus.Logger, opts ...Option) *Service {
	s := &Service{
		store:          st,
		gateway:        gw,
		notifier:       n,
		log:            log,
		loc:            time.UTC,
		paymentMethod:  "MoMo",
		gatewayTimeout: 15 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// work is one unit of work. Side effects collected on it (metrics, cache
// invalidation, notifications) are released only after commit.
type work struct {
	r       store.Repository
	moves   []move
	lots    map[uuid.UUID]bool
	notices []notify.Message
}

func (w *work) touch(lotID uuid.UUID) {
	if w.lots == nil {
		w.lots = map[uuid.UUID]bool{}
	}
	w.lots[lotID] = true
}

func (w *work) notify(u *model.User, subject, body string) {
	w.notices = append(w.notices, notify.Message{To: u.Email, Subject: subject, Body: body})
}

func (s *Service) inTx(ctx context.Context, fn func(w *work) error) error {
	var w *work
	err := s.store.InTx(ctx, func(r store.Repository) error {
		w = &work{r: r}
		return fn(w)
	})
	if err != nil {
		return err
	}
	s.afterCommit(ctx, w)
	return nil
}

func (s *Service) afterCommit(ctx context.Context, w *work) {
	for _, m := range w.moves {
		s.metrics.SpotTransition(string(m.from), string(m.to))
		s.log.WithFields(logrus.Fields{
			"spot": m.spotID,
			"from": m.from,
			"to":   m.to,
		}).Debug("spot transition")
	}
	if s.cache != nil {
		for lotID := range w.lots {
			if err := s.cache.Invalidate(ctx, lotID); err != nil {
				s.log.WithError(err).WithField("lot", lotID).Warn("availability cache invalidation failed")
			}
		}
	}
	for _, n := range w.notices {
		s.notifier.Dispatch(n)
	}
}

func (s *Service) view(ctx context.Context, fn func(r store.Repository) error) error {
	return s.store.View(ctx, fn)
}

// requireGate admits only callers holding the parking_history scope.
func requireGate(p auth.Principal) error {
	if !p.Has(auth.ScopeParkingHistory) {
		return fail(KindScopeDenied, "operation requires the %s scope", auth.ScopeParkingHistory)
	}
	return nil
}

// denyGate rejects parking_history-scoped callers from general operations.
func denyGate(p auth.Principal) error {
	if p.Has(auth.ScopeParkingHistory) {
		return fail(KindScopeDenied, "%s tokens may only record entries and exits", auth.ScopeParkingHistory)
	}
	return nil
}

func requireAdmin(p auth.Principal) error {
	if !p.Has(auth.ScopeAdmin) {
		return fail(KindScopeDenied, "operation requires the %s scope", auth.ScopeAdmin)
	}
	return nil
}
