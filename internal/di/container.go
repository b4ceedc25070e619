package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vastra-shop/api/internal/platform/config"
	"github.com/vastra-shop/api/internal/platform/observability"
	"github.com/vastra-shop/api/internal/repositories"
	"github.com/vastra-shop/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Stock      services.StockService
	Checkout   services.CheckoutService
	Orders     services.OrderService
	Returns    services.ReturnService
	Promotions services.PromotionService
	System     services.SystemService
}

// ContainerDeps carries the externally constructed collaborators the container wires together.
// Event publishers are optional; services run without emitting events when they are nil.
type ContainerDeps struct {
	Config      config.Config
	Registry    repositories.Registry
	OrderEvents services.OrderEventPublisher
	StockEvents services.StockEventPublisher
	Build       services.BuildInfo
	Logger      *zap.Logger
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides a Firestore
// backed registry, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, deps ContainerDeps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       deps.Config,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, deps ContainerDeps) (Services, error) {
	var svc Services

	reg := deps.Registry
	cfg := deps.Config
	logFn := serviceLogger(deps.Logger)

	stockSvc, err := services.NewStockService(services.StockServiceDeps{
		Variants: reg.Variants(),
		Events:   deps.StockEvents,
		Clock:    time.Now,
		Logger:   logFn,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build stock service: %w", err)
	}
	svc.Stock = stockSvc

	pricing := services.CheckoutPricing{
		Currency:              cfg.Checkout.Currency,
		ShippingFee:           cfg.Checkout.ShippingFee,
		FreeShippingThreshold: cfg.Checkout.FreeShippingThreshold,
		MaxQuantityPerLine:    cfg.Checkout.MaxQuantityPerLine,
	}
	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Orders:   reg.Orders(),
		Variants: reg.Variants(),
		Coupons:  reg.Coupons(),
		Offers:   reg.Offers(),
		Counters: reg.Counters(),
		Pricing:  pricing,
		Clock:    time.Now,
		Events:   deps.OrderEvents,
		Logger:   logFn,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Variants:   reg.Variants(),
		UnitOfWork: reg,
		Clock:      time.Now,
		Events:     deps.OrderEvents,
		Logger:     logFn,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	returnSvc, err := services.NewReturnService(services.ReturnServiceDeps{
		Returns:    reg.Returns(),
		Orders:     reg.Orders(),
		Variants:   reg.Variants(),
		UnitOfWork: reg,
		Clock:      time.Now,
		Events:     deps.OrderEvents,
		Logger:     logFn,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build return service: %w", err)
	}
	svc.Returns = returnSvc

	promotionSvc, err := services.NewPromotionService(services.PromotionServiceDeps{
		Coupons: reg.Coupons(),
		Offers:  reg.Offers(),
		Clock:   time.Now,
		Logger:  logFn,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build promotion service: %w", err)
	}
	svc.Promotions = promotionSvc

	build := deps.Build
	if build.Environment == "" {
		build.Environment = cfg.Security.Environment
	}
	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Counters:         reg.Counters(),
		Clock:            time.Now,
		Build:            build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = systemSvc

	return svc, nil
}

// serviceLogger adapts the request-scoped zap logger to the field-map callback services accept.
func serviceLogger(fallback *zap.Logger) func(context.Context, string, map[string]any) {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := observability.FromContext(ctx)
		if logger == nil {
			logger = fallback
		}
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(event, zapFields...)
	}
}
