package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/punchcardhq/punchcard/internal/backup"
	"github.com/punchcardhq/punchcard/internal/dispatch"
	"github.com/punchcardhq/punchcard/internal/handler"
	"github.com/punchcardhq/punchcard/internal/middleware"
	"github.com/punchcardhq/punchcard/internal/realtime"
	"github.com/punchcardhq/punchcard/internal/stamp"
	"github.com/punchcardhq/punchcard/internal/store"
	"github.com/punchcardhq/punchcard/internal/wallet"
)

// Config holds server wiring configuration.
type Config struct {
	Backup           backup.Config
	WalletWebhookURL string
}

type Server struct {
	db            *sql.DB
	hub           *realtime.Hub
	stampH        *handler.StampHandler
	accountH      *handler.AccountHandler
	authH         *handler.AuthHandler
	accountStore  *store.AccountStore
	sessionStore  *store.SessionStore
	staffStore    *store.StaffStore
	rateLimiter   *middleware.RateLimiter
	walletQueue   *wallet.Queue
	backupManager *backup.Manager
	logger        *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	hub := realtime.NewHub(logger.With("component", "realtime"))

	merchantStore := store.NewMerchantStore(db)
	customerStore := store.NewCustomerStore(db)
	accountStore := store.NewAccountStore(db)
	eventStore := store.NewStampEventStore(db)
	ledgerStore := store.NewPointsLedgerStore(db)
	staffStore := store.NewStaffStore(db)
	sessionStore := store.NewSessionStore(db)
	backupStore := store.NewBackupStore(db)

	var refresher wallet.PassRefresher
	if cfg.WalletWebhookURL != "" {
		refresher = wallet.NewWebhookRefresher(cfg.WalletWebhookURL)
	} else {
		refresher = &wallet.NoopRefresher{Logger: logger.With("component", "wallet")}
	}
	walletQueue := wallet.NewQueue(refresher, logger.With("component", "wallet"))

	// Side effects run after commit only: wallet passes resync and the
	// account's realtime channel hears the new balance.
	dispatcher := dispatch.New(logger.With("component", "dispatch"),
		dispatch.Hook{
			Name: "wallet_resync",
			Run: func(ctx context.Context, snap stamp.Snapshot) error {
				return walletQueue.Enqueue(snap.AccountID)
			},
		},
		dispatch.Hook{
			Name: "realtime_broadcast",
			Run: func(ctx context.Context, snap stamp.Snapshot) error {
				update := realtime.BalanceUpdate{
					Type:              "balance_update",
					RewardTarget:      snap.RewardTarget,
					StampCount:        snap.StampCount,
					RewardBalance:     snap.RewardBalance,
					LastStampedAt:     snap.LastStampedAt,
					RewardAvailableAt: snap.RewardAvailableAt,
					RewardRedeemedAt:  snap.RewardRedeemedAt,
				}
				if m, err := merchantStore.GetByID(snap.MerchantID); err == nil && m != nil {
					update.MerchantName = m.Name
					update.RewardTitle = m.RewardTitle
				}
				if c, err := customerStore.GetByID(snap.CustomerID); err == nil && c != nil {
					update.CustomerName = c.DisplayName
				}
				hub.Publish(snap.PublicToken, update)
				return nil
			},
		},
	)

	authz := stamp.NewAuthorizer(staffStore)
	engine := stamp.NewEngine(db, accountStore, eventStore, ledgerStore, merchantStore, authz, dispatcher.Dispatch, logger.With("component", "stamp"))

	backupMgr := backup.NewManager(cfg.Backup, db, backupStore, logger)

	return &Server{
		db:            db,
		hub:           hub,
		stampH:        handler.NewStampHandler(engine, accountStore, logger.With("component", "stamp_handler")),
		accountH:      handler.NewAccountHandler(accountStore, merchantStore, customerStore, logger.With("component", "account_handler")),
		authH:         handler.NewAuthHandler(staffStore, sessionStore, logger.With("component", "auth")),
		accountStore:  accountStore,
		sessionStore:  sessionStore,
		staffStore:    staffStore,
		rateLimiter:   middleware.NewRateLimiter(),
		walletQueue:   walletQueue,
		backupManager: backupMgr,
		logger:        logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// WalletQueue returns the wallet resync queue so main can start and stop it.
func (s *Server) WalletQueue() *wallet.Queue {
	return s.walletQueue
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /login", s.rateLimited(middleware.KeyByIP, 10, s.authH.Login))
	outerMux.HandleFunc("GET /api/accounts/{token}", s.accountH.Get)
	outerMux.HandleFunc("GET /ws/{token}", realtime.HandleWebSocket(s.hub, s.accountStore, s.logger.With("component", "realtime")))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes behind session auth
	protectedMux := http.NewServeMux()
	protectedMux.HandleFunc("POST /api/stamp", s.rateLimited(middleware.KeyByStaff, 120, s.stampH.Stamp))
	protectedMux.HandleFunc("POST /api/redeem", s.rateLimited(middleware.KeyByStaff, 120, s.stampH.Redeem))
	protectedMux.HandleFunc("POST /logout", s.authH.Logout)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.staffStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "degraded"})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimited(keyFunc func(*http.Request) string, limit int, h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, limit, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}
