package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/ondo/internal/auth"
	"github.com/dukerupert/ondo/internal/backup"
	"github.com/dukerupert/ondo/internal/handler"
	"github.com/dukerupert/ondo/internal/middleware"
	"github.com/dukerupert/ondo/internal/push"
	"github.com/dukerupert/ondo/internal/store"
	"github.com/dukerupert/ondo/internal/tracker"
	ws "github.com/dukerupert/ondo/internal/websocket"
)

type Config struct {
	FeeEpoch       tracker.Month
	CSRFKey        []byte
	SecureCookies  bool
	ViewerTTL      time.Duration
	MaxViewers     int
	OriginPatterns []string
	Backup         backup.Config
	Push           push.Config
}

type Server struct {
	db           *sql.DB
	cfg          Config
	hub          *ws.Hub
	viewers      *tracker.Registry
	authH        *handler.AuthHandler
	attendanceH  *handler.AttendanceHandler
	feeH         *handler.FeeHandler
	noticeH      *handler.NoticeHandler
	backupH      *handler.BackupHandler
	backups      *backup.Manager
	pushH        *handler.PushHandler
	scheduler    *push.Scheduler
	userStore    *store.UserStore
	sessionStore *store.SessionStore
	rateLimiter  *middleware.RateLimiter
	logger       *slog.Logger
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	memberStore := store.NewMemberStore(db)
	attendanceStore := store.NewAttendanceStore(db)
	feeStore := store.NewFeeStore(db)
	settingsStore := store.NewSettingsStore(db)
	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	backupStore := store.NewBackupStore(db)
	backups := backup.NewManager(cfg.Backup, db, backupStore, logger.With("component", "backup"))

	pushStore := store.NewPushStore(db)
	var pushService *push.Service
	var scheduler *push.Scheduler
	if cfg.Push.Enabled() {
		pushService = push.NewService(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey, cfg.Push.Subject)
		scheduler = push.NewScheduler(pushService, pushStore, memberStore, feeStore, userStore, cfg.Push.Schedule, logger.With("component", "push"))
	}

	seq := tracker.NewSequencer(time.Now())
	for _, src := range []interface{ MaxRevision() (int64, error) }{attendanceStore, feeStore} {
		rev, err := src.MaxRevision()
		if err != nil {
			logger.Error("seed revisions", "error", err)
			continue
		}
		seq.Observe(rev)
	}
	viewers := tracker.NewRegistry(
		tracker.NewViewerFactory(memberStore, attendanceStore, feeStore, seq, cfg.FeeEpoch, logger.With("component", "tracker")),
		cfg.ViewerTTL,
		cfg.MaxViewers,
	)

	return &Server{
		db:           db,
		cfg:          cfg,
		hub:          hub,
		viewers:      viewers,
		authH:        handler.NewAuthHandler(userStore, sessionStore, cfg.SecureCookies, logger.With("component", "auth")),
		attendanceH:  handler.NewAttendanceHandler(viewers, hub, logger.With("component", "attendance")),
		feeH:         handler.NewFeeHandler(viewers, hub),
		noticeH:      handler.NewNoticeHandler(settingsStore, hub, logger.With("component", "notice")),
		backupH:      handler.NewBackupHandler(backups, backupStore, logger.With("component", "backup")),
		backups:      backups,
		pushH:        handler.NewPushHandler(pushStore, pushService, logger.With("component", "push")),
		scheduler:    scheduler,
		userStore:    userStore,
		sessionStore: sessionStore,
		rateLimiter:  middleware.NewRateLimiter(),
		logger:       logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// UserStore returns the user store for the admin bootstrap.
func (s *Server) UserStore() *store.UserStore {
	return s.userStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Viewers returns the per-viewer registry for idle sweeps.
func (s *Server) Viewers() *tracker.Registry {
	return s.viewers
}

// Backups returns the backup manager so main can start its schedule.
func (s *Server) Backups() *backup.Manager {
	return s.backups
}

// Scheduler returns the reminder scheduler, or nil when push is not
// configured.
func (s *Server) Scheduler() *push.Scheduler {
	return s.scheduler
}

// Hub returns the change feed hub so shutdown can close it.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	admin := middleware.RequireAdmin

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, handler.ViewerID, s.cfg.OriginPatterns, s.logger.With("component", "websocket")))
	mux.HandleFunc("GET /api/csrf", s.csrfHandler)

	// Identity
	mux.HandleFunc("GET /api/session", s.authH.Session)
	mux.Handle("POST /api/login", s.limited("login", 10, time.Minute, s.authH.Login))
	mux.Handle("POST /api/logout", middleware.RequireAuth(http.HandlerFunc(s.authH.Logout)))

	// Attendance grid
	mux.HandleFunc("GET /api/attendance", s.attendanceH.Get)
	mux.HandleFunc("POST /api/attendance/month", s.attendanceH.ChangeMonth)
	mux.Handle("POST /api/attendance/toggle", admin(http.HandlerFunc(s.attendanceH.Toggle)))

	// Roster
	mux.Handle("POST /api/members", admin(http.HandlerFunc(s.attendanceH.AddMember)))
	mux.Handle("PUT /api/members/{id}", admin(http.HandlerFunc(s.attendanceH.RenameMember)))
	mux.Handle("POST /api/members/{id}/edit", admin(http.HandlerFunc(s.attendanceH.StartEdit)))
	mux.HandleFunc("DELETE /api/members/edit", s.attendanceH.CancelEdit)
	mux.Handle("POST /api/members/{id}/delete-request", admin(http.HandlerFunc(s.attendanceH.RequestDelete)))
	mux.Handle("POST /api/members/delete-confirm", admin(http.HandlerFunc(s.attendanceH.ConfirmDelete)))
	mux.Handle("POST /api/members/delete-cancel", admin(http.HandlerFunc(s.attendanceH.CancelDelete)))

	// Fee grid
	mux.HandleFunc("GET /api/fees", s.feeH.Get)
	mux.HandleFunc("POST /api/fees/month", s.feeH.ChangeMonth)
	mux.Handle("POST /api/fees/toggle", admin(http.HandlerFunc(s.feeH.Toggle)))

	// Team notice
	mux.HandleFunc("GET /api/notice", s.noticeH.Get)
	mux.Handle("PUT /api/notice", admin(http.HandlerFunc(s.noticeH.Update)))

	// Backups
	mux.Handle("GET /api/backups", admin(http.HandlerFunc(s.backupH.List)))
	mux.Handle("POST /api/backups", admin(s.limited("backup", 3, time.Hour, s.backupH.Run)))

	// Push notifications
	requireAuth := middleware.RequireAuth
	mux.Handle("GET /api/push/vapid-key", requireAuth(http.HandlerFunc(s.pushH.GetVAPIDKey)))
	mux.Handle("GET /api/push/subscriptions", requireAuth(http.HandlerFunc(s.pushH.ListSubscriptions)))
	mux.Handle("POST /api/push/subscriptions", requireAuth(http.HandlerFunc(s.pushH.Subscribe)))
	mux.Handle("DELETE /api/push/subscriptions/{id}", requireAuth(http.HandlerFunc(s.pushH.Unsubscribe)))
	mux.Handle("GET /api/push/preferences", requireAuth(http.HandlerFunc(s.pushH.GetPreferences)))
	mux.Handle("PUT /api/push/preferences", requireAuth(http.HandlerFunc(s.pushH.UpdatePreferences)))
	mux.Handle("POST /api/push/test", requireAuth(s.limited("push-test", 5, time.Minute, s.pushH.TestNotification)))

	var h http.Handler = mux
	h = middleware.CSRF(s.cfg.CSRFKey, s.cfg.SecureCookies, s.logger.With("component", "csrf"))(h)
	h = middleware.LoadSession(s.sessionStore, s.userStore, s.logger.With("component", "session"))(h)
	h = handler.Viewers(s.cfg.SecureCookies)(h)
	return middleware.RequestLogger(s.logger.With("component", "http"))(h)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) csrfHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(map[string]string{"token": middleware.CSRFToken(r), "header": middleware.CSRFHeader})
}

// limited wraps h in a fixed-window rate limit. Keys are the route name plus
// the signed-in user, or the client IP for guests.
func (s *Server) limited(name string, limit int, per time.Duration, h http.HandlerFunc) http.Handler {
	keyFunc := func(r *http.Request) string {
		if id := auth.UserID(r.Context()); id != 0 {
			return name + ":user:" + strconv.FormatInt(id, 10)
		}
		return name + ":ip:" + middleware.RealIP(r)
	}
	return middleware.RateLimit(s.rateLimiter, keyFunc, limit, per)(h)
}
