package di

import (
	"go.uber.org/zap"

	"github.com/metrolink/fulfillment/internal/approval"
	"github.com/metrolink/fulfillment/internal/client"
	"github.com/metrolink/fulfillment/internal/events"
	"github.com/metrolink/fulfillment/internal/handler"
	"github.com/metrolink/fulfillment/internal/repository"
	"github.com/metrolink/fulfillment/internal/saga"
	"github.com/metrolink/fulfillment/pkg/config"
	"github.com/metrolink/fulfillment/pkg/database"
	"github.com/metrolink/fulfillment/pkg/redis"
	"github.com/metrolink/fulfillment/pkg/singleflight"
)

// Container holds all dependencies for the fulfillment service
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *redis.Client

	// Collaborator clients
	PaymentClient client.PaymentAPI
	BookingClient client.BookingAPI
	TicketClient  client.TicketAPI

	// Saga
	Guard        singleflight.Guard
	OutcomeRepo  repository.OutcomeRepository
	Publisher    events.Publisher
	Orchestrator *saga.Orchestrator

	// Handlers
	HealthHandler      *handler.HealthHandler
	FulfillmentHandler *handler.FulfillmentHandler
}

// ContainerConfig contains pre-built infrastructure for the container.
// DB, Redis and Publisher are optional: without Redis the guard is
// process-local, without DB outcomes live in memory, without a publisher
// events are dropped.
type ContainerConfig struct {
	Config    *config.Config
	DB        *database.PostgresDB
	Redis     *redis.Client
	Publisher events.Publisher
	Logger    *zap.Logger
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	c := &Container{
		DB:        cfg.DB,
		Redis:     cfg.Redis,
		Publisher: cfg.Publisher,
	}

	svc := cfg.Config.Services
	c.PaymentClient = client.NewPaymentClient(svc.PaymentServiceURL, svc.CallTimeout)
	c.BookingClient = client.NewBookingClient(svc.BookingServiceURL, svc.CallTimeout)
	c.TicketClient = client.NewTicketClient(svc.TicketServiceURL, svc.CallTimeout)

	if c.Redis != nil {
		c.Guard = singleflight.NewRedisGuard(c.Redis.Client(), "", cfg.Config.Saga.GuardTTL)
	} else {
		c.Guard = singleflight.NewMemoryGuard()
	}

	if c.DB != nil {
		c.OutcomeRepo = repository.NewPostgresOutcomeRepository(c.DB.Pool())
	} else {
		c.OutcomeRepo = repository.NewMemoryOutcomeRepository()
	}

	if c.Publisher == nil {
		c.Publisher = events.NoopPublisher{}
	}

	approver := saga.NewSimulatedApprover(&approval.Config{
		OpenDelay:       cfg.Config.Approval.OpenDelay,
		ApprovalWindow:  cfg.Config.Approval.ApprovalWindow,
		ProcessingDelay: cfg.Config.Approval.ProcessingDelay,
		SuccessRate:     cfg.Config.Approval.SuccessRate,
	})

	c.Orchestrator = saga.NewOrchestrator(
		c.Guard,
		approver,
		saga.NewPaymentStep(c.PaymentClient, log),
		saga.NewBookingConfirmStep(c.BookingClient, log),
		saga.NewTicketIssuanceStep(c.TicketClient, cfg.Config.Saga.TicketValidity, log),
		c.OutcomeRepo,
		c.Publisher,
		&saga.Config{
			StepTimeout: cfg.Config.Saga.StepTimeout,
			RunTimeout:  cfg.Config.Saga.RunTimeout,
		},
		log,
	)

	c.HealthHandler = handler.NewHealthHandler(c.DB, c.Redis)
	c.FulfillmentHandler = handler.NewFulfillmentHandler(c.Orchestrator, c.BookingClient, c.OutcomeRepo)

	return c
}
