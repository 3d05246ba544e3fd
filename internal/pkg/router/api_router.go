package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/gemfault/GemFlow/app/controllers"
	"github.com/gemfault/GemFlow/internal/pkg/cache"
	"github.com/gemfault/GemFlow/internal/pkg/env"
	"github.com/gemfault/GemFlow/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        env.GetEnvInt("API_RATE_LIMIT", 60),
		Expiration: 1 * time.Minute,
		Storage:    newLimiterStorage(),
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "GemFlow API",
		})
	})

	v1 := api.Group("/v1", middleware.TenantAPIKeyMiddleware())
	v1.Get("/ledger", controllers.HandleLedgerList)
	v1.Get("/ledger/:uuid", controllers.HandleLedgerEntry)
	v1.Post("/ledger/:uuid/redrive", controllers.HandleLedgerRedrive)
	v1.Post("/webhook-test", controllers.HandleWebhookTest)
	v1.Get("/stats", controllers.HandleStats)
}

// newLimiterStorage backs the rate limiter with the shared Redis instance so
// limits hold across replicas. Database 2 keeps limiter keys away from cache
// and queue data.
func newLimiterStorage() fiber.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if client := cache.GetClient(); client != nil {
		if h, p, err := net.SplitHostPort(client.Options().Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := client.Options().Password; p != "" {
			password = p
		}
	}
	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 2,
		Reset:    false,
	})
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
