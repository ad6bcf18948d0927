package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/loyalty/internal/archive"
	"github.com/dukerupert/loyalty/internal/config"
	"github.com/dukerupert/loyalty/internal/coupon"
	"github.com/dukerupert/loyalty/internal/email"
	"github.com/dukerupert/loyalty/internal/engine"
	"github.com/dukerupert/loyalty/internal/handler"
	"github.com/dukerupert/loyalty/internal/ledger"
	"github.com/dukerupert/loyalty/internal/middleware"
	"github.com/dukerupert/loyalty/internal/model"
	"github.com/dukerupert/loyalty/internal/notify"
	"github.com/dukerupert/loyalty/internal/push"
	"github.com/dukerupert/loyalty/internal/store"
	ws "github.com/dukerupert/loyalty/internal/websocket"
)

type Server struct {
	db  *sql.DB
	cfg *config.Config
	hub *ws.Hub

	webhookH  *handler.WebhookHandler
	merchantH *handler.MerchantHandler
	rewardH   *handler.RewardHandler
	customerH *handler.CustomerHandler
	eventH    *handler.EventHandler
	pushH     *handler.PushHandler

	merchantStore *store.MerchantStore
	rateLimiter   *middleware.RateLimiter
	dispatcher    *notify.Dispatcher
	engine        *engine.Engine
	ledger        *ledger.Ledger
	archiver      *archive.Archiver
	logger        *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	merchantStore := store.NewMerchantStore(db)
	customerStore := store.NewCustomerStore(db)
	activityStore := store.NewActivityStore(db)
	rewardStore := store.NewRewardStore(db)
	couponStore := store.NewCouponStore(db)
	pushStore := store.NewPushStore(db)
	archiveStore := store.NewArchiveStore(db)

	pushSvc := push.NewService(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey, cfg.Push.Subscriber)

	dispatcherOpts := []notify.DispatcherOption{
		notify.WithTimeout(cfg.Loyalty.NotifyTimeout),
		notify.WithOperatorEmail(cfg.Email.OperatorEmail),
		notify.WithAlertSink(push.NewNotifier(pushSvc, pushStore, logger)),
	}
	if cfg.EmailEnabled() {
		dispatcherOpts = append(dispatcherOpts, notify.WithTransport(email.NewClient(cfg.Email.PostmarkToken, cfg.Email.From)))
	} else {
		logger.Warn("postmark not configured; customer notifications are disabled")
	}
	dispatcher := notify.NewDispatcher(logger, dispatcherOpts...)

	l := ledger.New(customerStore, activityStore, logger.With("component", "ledger"),
		ledger.WithRetry(cfg.Loyalty.LedgerRetries, cfg.Loyalty.LedgerBackoff))
	issuer := coupon.NewIssuer(rewardStore, couponStore, activityStore, dispatcher, logger.With("component", "coupon"),
		coupon.WithPolicy(model.ParseRewardPolicy(cfg.Loyalty.RewardPolicy)))
	eng := engine.New(merchantStore, customerStore, l, issuer, dispatcher, logger.With("component", "engine"),
		engine.WithFeed(hub))

	archiver := archive.New(archive.Config{
		S3: archive.S3Config{
			Endpoint:  cfg.Archive.Endpoint,
			Bucket:    cfg.Archive.Bucket,
			Region:    cfg.Archive.Region,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Prefix:    cfg.Archive.Prefix,
		},
		Passphrase: cfg.Archive.Passphrase,
	}, activityStore, archiveStore, logger.With("component", "archive"))

	var pushH *handler.PushHandler
	if pushSvc.Configured() {
		pushH = handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler"))
	}

	return &Server{
		db:            db,
		cfg:           cfg,
		hub:           hub,
		webhookH:      handler.NewWebhookHandler(customerStore, activityStore, eng, logger.With("component", "webhook")),
		merchantH:     handler.NewMerchantHandler(merchantStore, l, logger.With("component", "merchant")),
		rewardH:       handler.NewRewardHandler(rewardStore, hub, logger.With("component", "reward")),
		customerH:     handler.NewCustomerHandler(customerStore, activityStore, couponStore, logger.With("component", "customer")),
		eventH:        handler.NewEventHandler(eng, logger.With("component", "event")),
		pushH:         pushH,
		merchantStore: merchantStore,
		rateLimiter:   middleware.NewRateLimiter(),
		dispatcher:    dispatcher,
		engine:        eng,
		ledger:        l,
		archiver:      archiver,
		logger:        logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Dispatcher returns the notification dispatcher so shutdown can drain it.
func (s *Server) Dispatcher() *notify.Dispatcher {
	return s.dispatcher
}

func (s *Server) Engine() *engine.Engine {
	return s.engine
}

func (s *Server) Ledger() *ledger.Ledger {
	return s.ledger
}

func (s *Server) Archiver() *archive.Archiver {
	return s.archiver
}

func (s *Server) MerchantStore() *store.MerchantStore {
	return s.merchantStore
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	// Only authenticated deliveries count against a merchant's quota.
	webhookLimit := middleware.RateLimit(s.rateLimiter, middleware.MerchantKey, s.cfg.WebhookRateLimit, time.Minute)
	mux.Handle("POST /webhooks/{merchant}", s.merchant(webhookLimit(http.HandlerFunc(s.webhookH.Receive)).ServeHTTP))

	const base = "/api/merchants/{merchant}"
	mux.Handle("GET "+base+"/settings", s.merchant(s.merchantH.GetSettings))
	mux.Handle("PUT "+base+"/settings", s.merchant(s.merchantH.UpdateSettings))
	mux.Handle("PUT "+base+"/notifications", s.merchant(s.merchantH.UpdateNotifications))
	mux.Handle("POST "+base+"/secret", s.admin(s.merchantH.RotateSecret))
	mux.Handle("GET "+base+"/reconcile", s.admin(s.merchantH.Reconcile))
	mux.Handle("POST "+base+"/events", s.admin(s.eventH.Process))

	mux.Handle("GET "+base+"/rewards", s.merchant(s.rewardH.List))
	mux.Handle("POST "+base+"/rewards", s.merchant(s.rewardH.Create))
	mux.Handle("PUT "+base+"/rewards/{id}", s.merchant(s.rewardH.Update))
	mux.Handle("DELETE "+base+"/rewards/{id}", s.merchant(s.rewardH.Delete))

	mux.Handle("GET "+base+"/customers", s.merchant(s.customerH.List))
	mux.Handle("GET "+base+"/customers/{id}", s.merchant(s.customerH.Get))
	mux.Handle("GET "+base+"/customers/{id}/activity", s.merchant(s.customerH.Activity))
	mux.Handle("GET "+base+"/customers/{id}/coupons", s.merchant(s.customerH.Coupons))

	mux.Handle("GET "+base+"/feed", s.merchant(ws.HandleWebSocket(s.hub, s.cfg.AllowedOrigins)))

	if s.pushH != nil {
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
		mux.Handle("GET "+base+"/push/subscriptions", s.merchant(s.pushH.ListSubscriptions))
		mux.Handle("POST "+base+"/push/subscriptions", s.merchant(s.pushH.Subscribe))
		mux.Handle("DELETE "+base+"/push/subscriptions/{id}", s.merchant(s.pushH.Unsubscribe))
		mux.Handle("POST "+base+"/push/test", s.merchant(s.pushH.TestNotification))
	}

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) merchant(h http.HandlerFunc) http.Handler {
	return middleware.RequireMerchant(s.merchantStore, s.cfg.AdminTokenHash, s.logger.With("component", "auth"))(h)
}

func (s *Server) admin(h http.HandlerFunc) http.Handler {
	return s.merchant(middleware.RequireAdmin(h).ServeHTTP)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}
