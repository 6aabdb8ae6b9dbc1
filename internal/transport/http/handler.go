package http

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"subpay/internal/model"
	"subpay/internal/provider"
	"subpay/internal/repository"
	"subpay/internal/service"
)

// maxBodyBytes caps every request body, including provider callbacks.
const maxBodyBytes = 1 << 20

type Handler struct {
	svc        service.PaymentService
	adminToken string
	logger     *slog.Logger
}

func NewHandler(svc service.PaymentService, adminToken string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, adminToken: adminToken, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /api/subscribe", h.Subscribe)
	mux.HandleFunc("POST /api/withdraw", h.Withdraw)

	mux.HandleFunc("POST /webhook/checkout", h.CheckoutWebhook)
	mux.HandleFunc("POST /ipn/coinpay", h.CryptoIPN)

	mux.Handle("GET /admin/api/users", h.adminOnly(h.ListUsers))
	mux.Handle("GET /admin/api/purchases", h.adminOnly(h.ListPurchases))
	mux.Handle("GET /admin/api/withdrawals", h.adminOnly(h.ListWithdrawals))
	mux.Handle("POST /admin/api/withdrawals/{id}/approve", h.adminOnly(h.ApproveWithdrawal))
	mux.Handle("POST /admin/api/withdrawals/{id}/reject", h.adminOnly(h.RejectWithdrawal))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req model.SubscribeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	url, err := h.svc.Subscribe(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"ok": true, "url": url})
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req model.WithdrawRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	withdrawal, err := h.svc.RequestWithdrawal(r.Context(), req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"ok": true, "withdrawalId": withdrawal.ID})
}

// CheckoutWebhook hands the exact raw bytes to verification; decoding before
// the signature check would break it.
func (h *Handler) CheckoutWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "unreadable_body")
		return
	}
	if err := h.svc.HandleCheckoutWebhook(r.Context(), raw, r.Header.Get(provider.SignatureHeader)); err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) CryptoIPN(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "unreadable_body")
		return
	}
	if err := h.svc.HandleCryptoIPN(r.Context(), raw, r.Header.Get(provider.HMACHeader)); err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context(), repository.MaxListLimit)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, users)
}

func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	purchases, err := h.svc.ListPurchases(r.Context(), repository.MaxListLimit)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, purchases)
}

func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	withdrawals, err := h.svc.ListWithdrawals(r.Context(), repository.MaxListLimit)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, withdrawals)
}

func (h *Handler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.processWithdrawal(w, r, true)
}

func (h *Handler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.processWithdrawal(w, r, false)
}

func (h *Handler) processWithdrawal(w http.ResponseWriter, r *http.Request, approve bool) {
	id := r.PathValue("id")
	if id == "" {
		h.respondError(w, http.StatusBadRequest, "missing_id")
		return
	}
	var req struct {
		Note string `json:"note"`
	}
	// The note body is optional.
	_ = json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req)

	withdrawal, err := h.svc.ProcessWithdrawal(r.Context(), id, approve, req.Note)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"ok": true, "withdrawal": withdrawal})
}

// adminOnly gates a handler behind the shared admin secret, supplied either
// as the X-Admin-Token header or the admin_token query parameter.
func (h *Handler) adminOnly(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Admin-Token")
		if token == "" {
			token = r.URL.Query().Get("admin_token")
		}
		if h.adminToken == "" || !secureCompare(token, h.adminToken) {
			h.respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		h.respondError(w, http.StatusBadRequest, "invalid_request")
	case errors.Is(err, service.ErrVerification):
		// Rejecting keeps the provider retrying; the callback was not applied.
		h.respondError(w, http.StatusBadRequest, "verification_failed")
	case errors.Is(err, repository.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, repository.ErrInvalidStatus):
		h.respondError(w, http.StatusConflict, "invalid_state")
	case errors.Is(err, service.ErrProvider):
		h.respondError(w, http.StatusBadGateway, "provider_error")
	default:
		h.logger.Error("internal error", "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal_error")
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]any{"ok": false, "error": message})
}
