package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"accountmart-api/internal/model"
	"accountmart-api/internal/service"
	"accountmart-api/pkg/response"

	"github.com/shopspring/decimal"
)

// DispatcherStats reports notification delivery counters.
type DispatcherStats interface {
	Stats(ctx context.Context) map[string]interface{}
}

// AdminHandler handles operator dashboard and user management requests.
type AdminHandler struct {
	admin      *service.AdminService
	auth       *service.AuthService
	store      StoreProber
	dispatcher DispatcherStats
	dbType     string
	startTime  time.Time
}

// AdminConfig holds AdminHandler dependencies. Store and Dispatcher may be nil.
type AdminConfig struct {
	Admin      *service.AdminService
	Auth       *service.AuthService
	Store      StoreProber
	Dispatcher DispatcherStats
	DBType     string
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(cfg AdminConfig) *AdminHandler {
	return &AdminHandler{
		admin:      cfg.Admin,
		auth:       cfg.Auth,
		store:      cfg.Store,
		dispatcher: cfg.Dispatcher,
		dbType:     cfg.DBType,
		startTime:  time.Now(),
	}
}

// BalanceRequest is the body of a balance adjustment.
type BalanceRequest struct {
	Balance decimal.Decimal `json:"balance"`
}

// PasswordRequest is the body of a password reset.
type PasswordRequest struct {
	Password string `json:"password"`
}

// TelegramRequest is the body of the telegram settings update.
type TelegramRequest struct {
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

// GetStats handles GET /api/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	market, err := h.admin.Stats(ctx)
	if err != nil {
		response.Error(w, err)
		return
	}

	stats := make(map[string]interface{})
	stats["market"] = market

	// System info
	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["db_type"] = h.dbType

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	if h.store != nil {
		ledger, err := h.store.Stats(ctx)
		if err == nil {
			ledger["status"] = "connected"
			stats["ledger"] = ledger
		} else {
			stats["ledger"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	}

	if h.dispatcher != nil {
		stats["notifications"] = h.dispatcher.Stats(ctx)
	} else {
		stats["notifications"] = map[string]interface{}{
			"status": "not_configured",
		}
	}

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// Sales handles GET /api/admin/sales?days=
func (h *AdminHandler) Sales(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days")
	if err != nil {
		response.Error(w, err)
		return
	}

	sales, err := h.admin.SalesByDay(r.Context(), days)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, sales)
}

// Activity handles GET /api/admin/activity?limit=
func (h *AdminHandler) Activity(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		response.Error(w, err)
		return
	}

	entries, err := h.admin.ActivityFeed(r.Context(), limit)
	if err != nil {
		response.Error(w, err)
		return
	}
	if limit <= 0 || limit > service.MaxActivityLimit {
		limit = len(entries)
	}
	response.JSONWithMeta(w, http.StatusOK, entries, 1, limit, int64(len(entries)))
}

// ListUsers handles GET /api/admin/users?role=
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.auth.ListUsers(r.Context(), model.Role(r.URL.Query().Get("role")))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, users)
}

// SetBalance handles PUT /api/admin/users/{id}/balance
func (h *AdminHandler) SetBalance(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	var req BalanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	rid, err := pathID(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	user, err := h.auth.SetBalance(r.Context(), id.UserID, rid, req.Balance)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, user)
}

// ResetPassword handles PUT /api/admin/users/{id}/password
func (h *AdminHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	var req PasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	rid, err := pathID(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	if err := h.auth.ResetPassword(r.Context(), id.UserID, rid, req.Password); err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}

// PurgeUser handles DELETE /api/admin/users/{id}
func (h *AdminHandler) PurgeUser(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	rid, err := pathID(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	if err := h.auth.PurgeUser(r.Context(), id.UserID, rid); err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}

// GetTelegram handles GET /api/admin/settings/telegram
func (h *AdminHandler) GetTelegram(w http.ResponseWriter, r *http.Request) {
	settings, err := h.admin.TelegramSettings(r.Context())
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, settings)
}

// PutTelegram handles PUT /api/admin/settings/telegram
func (h *AdminHandler) PutTelegram(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	var req TelegramRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	settings, err := h.admin.SetTelegramSettings(r.Context(), id.UserID, req.BotToken, req.ChatID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, settings)
}
