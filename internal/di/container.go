package di

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/crowdsense/internal/handler"
	"github.com/prohmpiriya/crowdsense/internal/repository"
	"github.com/prohmpiriya/crowdsense/internal/service"
	"github.com/prohmpiriya/crowdsense/pkg/config"
	"github.com/prohmpiriya/crowdsense/pkg/database"
	"github.com/prohmpiriya/crowdsense/pkg/kafka"
	"github.com/prohmpiriya/crowdsense/pkg/logger"
	"github.com/prohmpiriya/crowdsense/pkg/middleware"
	"github.com/prohmpiriya/crowdsense/pkg/redis"
)

// Repositories is one consistent set of stores
type Repositories struct {
	Destinations repository.DestinationRepository
	Zones        repository.ZoneRepository
	Rules        repository.RuleRepository
	Bookings     repository.BookingRepository
	ActionOrders repository.ActionOrderRepository
}

// MemoryRepositories returns the views of an in-memory store
func MemoryRepositories(store *repository.MemoryStore) *Repositories {
	return &Repositories{
		Destinations: store.Destinations(),
		Zones:        store.Zones(),
		Rules:        store.Rules(),
		Bookings:     store.Bookings(),
		ActionOrders: store.ActionOrders(),
	}
}

// PostgresRepositories returns repositories backed by db
func PostgresRepositories(db *database.PostgresDB) *Repositories {
	pool := db.Pool()
	return &Repositories{
		Destinations: repository.NewPostgresDestinationRepository(pool),
		Zones:        repository.NewPostgresZoneRepository(pool),
		Rules:        repository.NewPostgresRuleRepository(pool),
		Bookings:     repository.NewPostgresBookingRepository(pool),
		ActionOrders: repository.NewPostgresActionOrderRepository(pool),
	}
}

// Container holds all dependencies for the admission service
type Container struct {
	// Infrastructure
	DB       *database.PostgresDB
	Redis    *redis.Client
	Producer kafka.MessageProducer

	// Repositories
	Repos          *Repositories
	OccupancyCache repository.OccupancyCache

	// Side effects
	Broadcaster service.Broadcaster
	Notifier    service.NotificationSink
	Dispatcher  service.Dispatcher

	// Services
	RuleResolver        service.RuleResolver
	AvailabilityChecker service.AvailabilityChecker
	PricingEngine       service.PricingEngine
	ZoneHealthTracker   service.ZoneHealthTracker
	BookingService      service.BookingService
	CheckpointGate      service.CheckpointGate
	OccupancyService    service.OccupancyService
	ActionOrderService  service.ActionOrderService
	EscalationSweeper   service.EscalationSweeper

	// Handlers
	Handlers *handler.Handlers

	cfg *config.Config
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	Config *config.Config
	Repos  *Repositories
	// DB, Redis, Producer and Dispatcher are optional
	DB         *database.PostgresDB
	Redis      *redis.Client
	Producer   kafka.MessageProducer
	Dispatcher service.Dispatcher
	// Clock overrides time.Now in every service
	Clock func() time.Time
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) (*Container, error) {
	if cfg == nil || cfg.Config == nil || cfg.Repos == nil {
		return nil, errors.New("config and repositories are required")
	}
	appCfg := cfg.Config
	loc := appCfg.Location()
	log := logger.Get()

	c := &Container{
		DB:         cfg.DB,
		Redis:      cfg.Redis,
		Producer:   cfg.Producer,
		Repos:      cfg.Repos,
		Dispatcher: cfg.Dispatcher,
		cfg:        appCfg,
	}
	if c.Dispatcher == nil {
		c.Dispatcher = service.InlineDispatcher{}
	}

	// Side effects
	var broadcasters service.MultiBroadcaster
	if c.Producer != nil {
		broadcasters = append(broadcasters, service.NewKafkaBroadcaster(c.Producer, appCfg.Kafka.CapacityTopic, appCfg.App.Name))
		c.Notifier = service.NewKafkaNotificationSink(c.Producer, appCfg.Kafka.NotificationsTopic, appCfg.App.Name)
	} else {
		log.Warn("Kafka disabled, capacity updates and notifications are not published")
		c.Notifier = service.NewNoOpNotificationSink()
	}
	if c.Redis != nil {
		c.OccupancyCache = repository.NewRedisOccupancyCache(c.Redis, appCfg.Redis.OccupancyTTL)
		broadcasters = append(broadcasters, service.NewCacheBroadcaster(c.OccupancyCache))
	}
	switch len(broadcasters) {
	case 0:
		c.Broadcaster = service.NewNoOpBroadcaster()
	case 1:
		c.Broadcaster = broadcasters[0]
	default:
		c.Broadcaster = broadcasters
	}

	tokens, err := service.NewJWTTokenIssuer(&service.TokenIssuerConfig{
		Secret: appCfg.EntryToken.Secret,
		Issuer: appCfg.EntryToken.Issuer,
		TTL:    appCfg.EntryToken.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}

	// Services
	repos := c.Repos
	c.RuleResolver = service.NewRuleResolver(repos.Destinations, repos.Rules)
	c.AvailabilityChecker = service.NewAvailabilityChecker(c.RuleResolver, repos.Zones, repos.Bookings)
	c.PricingEngine = service.NewPricingEngine(repos.Destinations, repos.Rules, repos.Bookings, &service.PricingEngineConfig{
		DefaultBasePrice: appCfg.Admission.DefaultBasePrice,
		Currency:         appCfg.Admission.Currency,
	})
	c.ZoneHealthTracker = service.NewZoneHealthTracker(repos.Zones)
	c.BookingService = service.NewBookingService(service.BookingServiceDeps{
		Destinations: repos.Destinations,
		Bookings:     repos.Bookings,
		Availability: c.AvailabilityChecker,
		Pricing:      c.PricingEngine,
		Health:       c.ZoneHealthTracker,
		Tokens:       tokens,
		Broadcaster:  c.Broadcaster,
		Notifier:     c.Notifier,
		Dispatcher:   c.Dispatcher,
	}, &service.BookingServiceConfig{
		Location:          loc,
		ReferenceAttempts: appCfg.Admission.ReferenceRetryAttempts,
		Clock:             cfg.Clock,
	})
	c.CheckpointGate = service.NewCheckpointGate(repos.Bookings, repos.Zones, c.BookingService, &service.CheckpointGateConfig{
		Location: loc,
		Clock:    cfg.Clock,
	})
	c.OccupancyService = service.NewOccupancyService(repos.Destinations, repos.Zones, c.RuleResolver, c.OccupancyCache, &service.OccupancyServiceConfig{
		Location: loc,
		Clock:    cfg.Clock,
	})
	c.ActionOrderService = service.NewActionOrderService(repos.ActionOrders, &service.ActionOrderServiceConfig{
		GeoProofRadiusMeters: appCfg.Admission.GeoProofRadiusMeters,
		Clock:                cfg.Clock,
	})
	c.EscalationSweeper = service.NewEscalationSweeper(repos.ActionOrders, &service.EscalationSweeperConfig{
		StaleAfter: appCfg.Admission.EscalationStaleAfter,
		BatchSize:  appCfg.Admission.EscalationBatchSize,
	})

	// Handlers
	health := map[string]handler.HealthChecker{"database": nil, "redis": nil}
	if c.DB != nil {
		health["database"] = c.DB
	}
	if c.Redis != nil {
		health["redis"] = c.Redis
	}
	c.Handlers = &handler.Handlers{
		Health: handler.NewHealthHandler(health),
		Destination: handler.NewDestinationHandler(c.RuleResolver, c.AvailabilityChecker, c.PricingEngine, c.OccupancyService, &handler.DestinationHandlerConfig{
			Location: loc,
			Clock:    cfg.Clock,
		}),
		Booking:     handler.NewBookingHandler(c.BookingService),
		Checkpoint:  handler.NewCheckpointHandler(c.CheckpointGate),
		ActionOrder: handler.NewActionOrderHandler(c.ActionOrderService),
	}

	return c, nil
}

// Router builds the HTTP router. Idempotent booking creation needs Redis.
func (c *Container) Router(log *logger.Logger) *gin.Engine {
	routerCfg := &handler.RouterConfig{
		ServiceName: c.cfg.OTel.ServiceName,
		Log:         log,
	}
	if c.Redis != nil {
		routerCfg.Idempotency = middleware.DefaultIdempotencyConfig(c.Redis)
	}
	if c.cfg.Admission.CheckpointScanRate > 0 {
		routerCfg.ScanLimiter = middleware.NewKeyedLimiter(c.cfg.Admission.CheckpointScanRate, c.cfg.Admission.CheckpointScanBurst)
	}
	return handler.NewRouter(c.Handlers, routerCfg)
}
