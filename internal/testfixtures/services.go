package testfixtures

import (
	"log/slog"
	"time"

	"github.com/example/podcoord/internal/application"
)

// ServiceFactory builds application services that share one deterministic clock
// and id sequence.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// PodServiceDeps captures dependencies for constructing a pod service.
type PodServiceDeps struct {
	Pods        application.PodRepository
	Accounts    application.AccountDirectory
	Engine      application.HuntEngine
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewPodService builds a pod service using the supplied dependencies combined
// with the factory defaults.
func (f *ServiceFactory) NewPodService(deps PodServiceDeps) *application.PodService {
	idGen, now := f.defaults(deps.IDGenerator, deps.Now)
	return application.NewPodServiceWithLogger(
		deps.Pods,
		deps.Accounts,
		deps.Engine,
		idGen,
		now,
		deps.Logger,
	)
}

// LinkServiceDeps captures dependencies for constructing a link service.
type LinkServiceDeps struct {
	Accounts    application.AccountDirectory
	Links       application.ShareLinkRepository
	Bookings    application.BookingRepository
	Ranker      application.SlotRanker
	Notifier    application.Notifier
	Config      application.LinkServiceConfig
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewLinkService builds a link service using the supplied dependencies.
func (f *ServiceFactory) NewLinkService(deps LinkServiceDeps) *application.LinkService {
	idGen, now := f.defaults(deps.IDGenerator, deps.Now)
	return application.NewLinkServiceWithLogger(
		deps.Accounts,
		deps.Links,
		deps.Bookings,
		deps.Ranker,
		deps.Notifier,
		idGen,
		now,
		deps.Config,
		deps.Logger,
	)
}

// BookingServiceDeps captures dependencies for constructing a booking service.
type BookingServiceDeps struct {
	Bookings     application.BookingRepository
	Links        application.ShareLinkRepository
	Accounts     application.AccountDirectory
	Notifier     application.Notifier
	ShareLinkTTL time.Duration
	IDGenerator  func() string
	Now          func() time.Time
	Logger       *slog.Logger
}

// NewBookingService builds a booking service using the supplied dependencies.
func (f *ServiceFactory) NewBookingService(deps BookingServiceDeps) *application.BookingService {
	idGen, now := f.defaults(deps.IDGenerator, deps.Now)
	return application.NewBookingServiceWithLogger(
		deps.Bookings,
		deps.Links,
		deps.Accounts,
		deps.Notifier,
		idGen,
		now,
		deps.ShareLinkTTL,
		deps.Logger,
	)
}

func (f *ServiceFactory) defaults(idGen func() string, now func() time.Time) (func() string, func() time.Time) {
	if idGen == nil {
		idGen = f.IDGenerator.NextFunc()
	}
	if now == nil {
		now = f.Clock.NowFunc()
	}
	return idGen, now
}
