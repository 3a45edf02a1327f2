// Package httpapi exposes the boost engine's REST surface. Every response
// uses the envelope {"status": true, "data": ...} on success and
// {"status": false, "error": {"code", "message"}} on failure.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	app "github.com/souq-network/marketplace/internal/app"
	"github.com/souq-network/marketplace/internal/app/auth"
	"github.com/souq-network/marketplace/internal/app/domain/boost"
	"github.com/souq-network/marketplace/internal/app/metrics"
	boostsvc "github.com/souq-network/marketplace/internal/app/services/boosts"
	serrors "github.com/souq-network/marketplace/internal/errors"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	audit *auditLog
}

// NewHandler returns a mux exposing the REST API. The caller wraps it with
// WrapWithAuth, WrapWithCORS and metrics.InstrumentHandler.
func NewHandler(application *app.Application) http.Handler {
	var sink auditSink
	if path := strings.TrimSpace(os.Getenv("AUDIT_LOG_PATH")); path != "" {
		if fileSink, err := newFileAuditSink(path); err == nil && fileSink != nil {
			sink = fileSink
		}
	}

	h := &handler{app: application, audit: newAuditLog(200, sink)}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", h.login)
	mux.HandleFunc("/healthz", h.health)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/add-boost", h.addBoost)
	mux.HandleFunc("/boost/", h.boostByID)
	mux.HandleFunc("/boosts", h.listBoosts)
	mux.HandleFunc("/admin", h.adminList)
	mux.HandleFunc("/admin/audit", h.adminAudit)
	mux.HandleFunc("/update-status", h.updateStatus)
	mux.HandleFunc("/wallet", h.walletAccount)
	mux.HandleFunc("/wallet/transactions", h.walletTransactions)
	mux.HandleFunc("/wallet/topup", h.walletTopUp)
	mux.HandleFunc("/pricing", h.pricing)
	mux.HandleFunc("/", h.fallback)
	return mux
}

// --- auth and health --------------------------------------------------------

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, serrors.Validation("invalid request body"))
		return
	}

	token, err := h.app.Auth.Login(payload.Username, payload.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"token": token})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"state": "ok"})
}

// --- boosts -----------------------------------------------------------------

type boostPayload struct {
	Type      boost.Type      `json:"boost_type"`
	ScopeType boost.ScopeType `json:"scope_type"`
	ScopeIDs  []string        `json:"scope_ids"`
	Duration  boost.Duration  `json:"duration"`
	Price     *int64          `json:"price"`
	Priority  int             `json:"priority"`
	StartDate *time.Time      `json:"start_date"`
}

func (h *handler) addBoost(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		writeServiceError(w, serrors.Unauthorized("authentication required"))
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload boostPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, serrors.Validation("invalid request body"))
		return
	}

	req := boostsvc.CreateRequest{
		Type:      payload.Type,
		ScopeType: payload.ScopeType,
		ScopeIDs:  payload.ScopeIDs,
		Duration:  payload.Duration,
		Price:     payload.Price,
		Priority:  payload.Priority,
	}
	if payload.StartDate != nil {
		req.StartDate = *payload.StartDate
	}

	created, err := h.app.Boosts.Create(r.Context(), principal, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, created)
}

func (h *handler) boostByID(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		writeServiceError(w, serrors.Unauthorized("authentication required"))
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/boost"), "/")
	if id == "" || strings.Contains(id, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		b, err := h.app.Boosts.Get(r.Context(), principal, id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, b)

	case http.MethodPut:
		var patch boost.Patch
		if err := decodeJSON(r.Body, &patch); err != nil {
			writeServiceError(w, serrors.Validation("invalid request body"))
			return
		}
		updated, err := h.app.Boosts.Update(r.Context(), principal, id, patch)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, updated)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) listBoosts(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		writeServiceError(w, serrors.Unauthorized("authentication required"))
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	boostType := boost.Type(strings.TrimSpace(r.URL.Query().Get("boostType")))
	result, err := h.app.Boosts.List(r.Context(), principal, boostType)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if result == nil {
		result = []boost.Boost{}
	}
	writeData(w, http.StatusOK, result)
}

// fallback handles the id-rooted routes: POST /:id/stop and DELETE /:id.
func (h *handler) fallback(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		writeServiceError(w, serrors.Unauthorized("authentication required"))
		return
	}

	trimmed := strings.Trim(r.URL.Path, "/")
	if trimmed == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(trimmed, "/")

	switch {
	case len(parts) == 2 && parts[1] == "stop" && r.Method == http.MethodPost:
		stopped, err := h.app.Boosts.Stop(r.Context(), principal, parts[0])
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, stopped)

	case len(parts) == 1 && r.Method == http.MethodDelete:
		if err := h.app.Boosts.Delete(r.Context(), principal, parts[0]); err != nil {
			writeServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, map[string]string{"id": parts[0]})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// --- admin ------------------------------------------------------------------

func (h *handler) adminList(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		writeServiceError(w, serrors.Unauthorized("authentication required"))
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	entries, err := h.app.Boosts.AdminList(r.Context(), principal)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []boostsvc.AdminEntry{}
	}
	writeData(w, http.StatusOK, entries)
}

func (h *handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		writeServiceError(w, serrors.Unauthorized("authentication required"))
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// boost_id is accepted alongside id for older clients.
	var payload struct {
		ID      string       `json:"id"`
		BoostID string       `json:"boost_id"`
		Status  boost.Status `json:"status"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, serrors.Validation("invalid request body"))
		return
	}
	if payload.ID == "" {
		payload.ID = payload.BoostID
	}

	updated, err := h.app.Boosts.ForceStatus(r.Context(), principal, payload.ID, payload.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.audit.add(auditEntry{
		Time:     time.Now().UTC(),
		Actor:    principal.Subject,
		Role:     string(principal.Role),
		Action:   "force-status",
		TargetID: updated.ID,
		Detail:   string(payload.Status),
	})
	writeData(w, http.StatusOK, updated)
}

func (h *handler) adminAudit(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		writeServiceError(w, serrors.Unauthorized("authentication required"))
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !principal.IsAdmin() {
		writeServiceError(w, serrors.Forbidden("audit access requires the admin role"))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	writeData(w, http.StatusOK, h.audit.listLimit(limit))
}

// --- wallet -----------------------------------------------------------------

func (h *handler) walletAccount(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		writeServiceError(w, serrors.Unauthorized("authentication required"))
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	acct, err := h.app.Wallet.Account(r.Context(), h.walletSubject(principal, r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, acct)
}

func (h *handler) walletTransactions(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		writeServiceError(w, serrors.Unauthorized("authentication required"))
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	entries, err := h.app.Wallet.Transactions(r.Context(), h.walletSubject(principal, r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeData(w, http.StatusOK, entries)
}

// walletSubject lets admins inspect another vendor's wallet via ?vendorId=.
func (h *handler) walletSubject(principal auth.Principal, r *http.Request) string {
	if principal.IsAdmin() {
		if vendorID := strings.TrimSpace(r.URL.Query().Get("vendorId")); vendorID != "" {
			return vendorID
		}
	}
	return principal.Subject
}

func (h *handler) walletTopUp(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		writeServiceError(w, serrors.Unauthorized("authentication required"))
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		VendorID    string `json:"vendor_id"`
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, serrors.Validation("invalid request body"))
		return
	}

	entry, err := h.app.Wallet.Credit(r.Context(), principal, payload.VendorID, payload.Amount, payload.Description)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	metrics.RecordLedgerEntry(entry.Amount)
	h.audit.add(auditEntry{
		Time:     time.Now().UTC(),
		Actor:    principal.Subject,
		Role:     string(principal.Role),
		Action:   "wallet-topup",
		TargetID: payload.VendorID,
		Detail:   strconv.FormatInt(payload.Amount, 10),
	})
	writeData(w, http.StatusCreated, entry)
}

// --- pricing ----------------------------------------------------------------

func (h *handler) pricing(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalFrom(r.Context())
	if !ok {
		writeServiceError(w, serrors.Unauthorized("authentication required"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		prices, err := h.app.Pricing.List(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, prices)

	case http.MethodPut:
		var payload struct {
			BoostType    boost.Type `json:"boost_type"`
			PricePerUnit int64      `json:"price_per_unit"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeServiceError(w, serrors.Validation("invalid request body"))
			return
		}
		price, err := h.app.Pricing.Set(r.Context(), principal, payload.BoostType, payload.PricePerUnit)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeData(w, http.StatusOK, price)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// --- envelope helpers -------------------------------------------------------

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": true,
		"data":   data,
	})
}

func writeServiceError(w http.ResponseWriter, err error) {
	svcErr := serrors.GetServiceError(err)
	if svcErr == nil {
		svcErr = serrors.Internal("unexpected error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(svcErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": false,
		"error": map[string]string{
			"code":    string(svcErr.Code),
			"message": svcErr.Message,
		},
	})
}
