package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mukhtabar/mukhtabar-backend/api/controllers"
	requestcontrollers "github.com/mukhtabar/mukhtabar-backend/api/controllers/exchangerequests"
	exchangecontrollers "github.com/mukhtabar/mukhtabar-backend/api/controllers/exchanges"
	listingcontrollers "github.com/mukhtabar/mukhtabar-backend/api/controllers/listings"
	ordercontrollers "github.com/mukhtabar/mukhtabar-backend/api/controllers/orders"
	walletcontrollers "github.com/mukhtabar/mukhtabar-backend/api/controllers/wallets"
	webhookcontrollers "github.com/mukhtabar/mukhtabar-backend/api/controllers/webhooks"
	"github.com/mukhtabar/mukhtabar-backend/api/middleware"
	"github.com/mukhtabar/mukhtabar-backend/internal/exchangerequests"
	"github.com/mukhtabar/mukhtabar-backend/internal/exchanges"
	"github.com/mukhtabar/mukhtabar-backend/internal/listings"
	"github.com/mukhtabar/mukhtabar-backend/internal/notifications"
	"github.com/mukhtabar/mukhtabar-backend/internal/orders"
	"github.com/mukhtabar/mukhtabar-backend/internal/wallets"
	internalwebhooks "github.com/mukhtabar/mukhtabar-backend/internal/webhooks"
	"github.com/mukhtabar/mukhtabar-backend/pkg/config"
	"github.com/mukhtabar/mukhtabar-backend/pkg/db"
	"github.com/mukhtabar/mukhtabar-backend/pkg/logger"
	"github.com/mukhtabar/mukhtabar-backend/pkg/moyasar"
	"github.com/mukhtabar/mukhtabar-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	listingsService listings.Service,
	requestsService exchangerequests.Service,
	exchangesService exchanges.Service,
	ordersService orders.Service,
	walletsService wallets.Service,
	walletsRepo wallets.Repository,
	webhookService internalwebhooks.Service,
	moyasarClient *moyasar.Client,
	notifier notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/v1/payments/webhook", func(r chi.Router) {
		r.Get("/", webhookcontrollers.MoyasarPing())
		r.Post("/", webhookcontrollers.MoyasarWebhook(webhookService, moyasarClient, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.LabContext(logg))

		r.Route("/listings", func(r chi.Router) {
			r.Post("/", listingcontrollers.Create(listingsService, logg))
			r.Get("/mine", listingcontrollers.ListMine(listingsService, logg))
			r.Get("/{listingId}", listingcontrollers.Detail(listingsService, logg))
		})

		r.Route("/exchange-requests", func(r chi.Router) {
			r.Post("/", requestcontrollers.Create(requestsService, notifier, logg))
			r.Get("/", requestcontrollers.List(requestsService, logg))
			r.Get("/{requestId}", requestcontrollers.Detail(requestsService, logg))
			r.Post("/{requestId}/view", requestcontrollers.MarkViewed(requestsService, logg))
			r.Post("/{requestId}/respond", requestcontrollers.Respond(requestsService, notifier, logg))
			r.Post("/{requestId}/withdraw", requestcontrollers.Withdraw(requestsService, logg))
		})

		r.Route("/exchanges", func(r chi.Router) {
			r.Get("/", exchangecontrollers.List(exchangesService, logg))
			r.Get("/{exchangeId}", exchangecontrollers.Detail(exchangesService, logg))
			r.Post("/{exchangeId}/status", exchangecontrollers.UpdateStatus(exchangesService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(ordersService, logg))
			r.Get("/", ordercontrollers.List(ordersService, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(ordersService, logg))
			r.Post("/{orderId}/confirm-payment", ordercontrollers.ConfirmPayment(ordersService, notifier, logg))
			r.Post("/{orderId}/status", ordercontrollers.UpdateStatus(ordersService, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(ordersService, notifier, logg))
		})

		r.Route("/wallets", func(r chi.Router) {
			r.Get("/me", walletcontrollers.Me(walletsService, logg))
			r.Get("/me/transactions", walletcontrollers.Transactions(walletsService, logg))
			r.Post("/deposit", walletcontrollers.Deposit(walletsService, logg))
			r.Post("/transfer", walletcontrollers.Transfer(walletsService, logg))
			r.Post("/withdraw", walletcontrollers.Withdraw(walletsService, notifier, logg))
		})
	})

	// Back-office surface. The gateway restricts these paths to operators.
	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.LabContext(logg))
		r.Post("/listings/{listingId}/review", listingcontrollers.Review(listingsService, logg))
		r.Post("/wallets/withdrawals/{transactionId}/resolve", walletcontrollers.ResolveWithdrawal(walletsService, walletsRepo, notifier, logg))
		r.Post("/wallets/{labId}/add-funds", walletcontrollers.AddFunds(walletsService, logg))
		r.Post("/wallets/{labId}/deduct-funds", walletcontrollers.DeductFunds(walletsService, logg))
	})

	return r
}
