package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gemfault/GemFlow/app/controllers"
)

type HttpRouter struct {
}

// InstallRouter registers the public ingestion endpoints and the operator
// dashboard. Webhook routes are unauthenticated by design: the payment
// provider authenticates via the signed body, the email gateway via its
// sender allow-list.
func (h HttpRouter) InstallRouter(app *fiber.App) {
	webhooks := app.Group("/webhooks")
	webhooks.Post("/payments/:tenant", controllers.HandlePaymentProviderWebhook)
	webhooks.Post("/email/:tenant", controllers.HandleInboundEmail)

	app.Get("/admin/ledger", controllers.HandleAdminLedgerPage)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
