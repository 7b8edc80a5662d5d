// Package httpapi serves the billing portal: email login and license management.
package httpapi

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/and161185/collabvault/internal/api"
	"github.com/and161185/collabvault/internal/auth"
	"github.com/and161185/collabvault/internal/convert"
	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/service"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	authCookie   = "billing_auth"
	activeCookie = "billing_auth_active"
)

// Handler serves the billing routes.
type Handler struct {
	licenses service.LicenseService
	log      *zap.Logger
	secure   bool
}

// New constructs a Handler. secure marks cookies Secure, for TLS deployments.
func New(licenses service.LicenseService, log *zap.Logger, secure bool) *Handler {
	return &Handler{licenses: licenses, log: log, secure: secure}
}

// Router returns the billing routes with request context and logging middleware.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.logging, requestContext)

	b := r.PathPrefix("/billing").Subrouter()
	b.HandleFunc("/auth/email", h.sendAuthEmail).Methods(http.MethodPost)
	b.HandleFunc("/auth", h.authenticate).Methods(http.MethodPost)
	b.HandleFunc("/logout", h.logout).Methods(http.MethodPost)
	b.HandleFunc("/account", h.account).Methods(http.MethodGet)
	b.HandleFunc("/licenses/{id}/user", h.addUserToLicense).Methods(http.MethodPost)
	b.HandleFunc("/licenses/{id}/refresh", h.refreshLicense).Methods(http.MethodPost)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}

// requestContext stores the bearer (cookie first, then Authorization header) and the client address.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var bearer string
		if c, err := r.Cookie(authCookie); err == nil {
			bearer = c.Value
		} else if v := r.Header.Get("Authorization"); len(v) > 7 && strings.EqualFold(v[:7], "bearer ") {
			bearer = strings.TrimSpace(v[7:])
		}
		peer := r.RemoteAddr
		if host, _, err := net.SplitHostPort(peer); err == nil {
			peer = host
		}
		rc := auth.NewRequestContext(nil, bearer, peer)
		next.ServeHTTP(w, r.WithContext(auth.WithRequestContext(r.Context(), rc)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.log.Info("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("dur", time.Since(start)),
		)
	})
}

func httpStatus(err error) int {
	switch errs.Kind(err) {
	case "AuthenticationFailed":
		return http.StatusUnauthorized
	case "AuthorizationFailed":
		return http.StatusForbidden
	case "NotFound":
		return http.StatusNotFound
	case "InvalidState", "ConflictOrTaken":
		return http.StatusConflict
	case "Validation":
		return http.StatusBadRequest
	case "RateLimited":
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "internal"
	}
	writeJSON(w, code, api.Error{Kind: errs.Kind(err), Message: msg})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.Validationf("bad request body: %v", err)
	}
	return nil
}

func bearer(r *http.Request) string {
	return auth.FromContext(r.Context()).BillingToken()
}

func (h *Handler) setCookies(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name: authCookie, Value: token, Path: "/", Expires: expires,
		HttpOnly: true, Secure: h.secure, SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name: activeCookie, Value: "true", Path: "/", Expires: expires,
		Secure: h.secure, SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearCookies(w http.ResponseWriter) {
	for _, name := range []string{authCookie, activeCookie} {
		http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1, Secure: h.secure, SameSite: http.SameSiteLaxMode})
	}
}

func (h *Handler) sendAuthEmail(w http.ResponseWriter, r *http.Request) {
	var req api.SendBillingAuthEmailRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	// the answer does not reveal whether the address has an account
	if _, err := h.licenses.SendAuthEmail(r.Context(), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.Success{Success: true})
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) {
	var req api.AuthenticateBillingRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	token, exp, err := h.licenses.Authenticate(r.Context(), req.EmailToken, auth.FromContext(r.Context()).Peer())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.setCookies(w, token, exp)
	writeJSON(w, http.StatusOK, api.AuthenticateBillingResponse{ExpiresAt: exp})
}

func (h *Handler) logout(w http.ResponseWriter, _ *http.Request) {
	h.clearCookies(w)
	writeJSON(w, http.StatusOK, api.Success{Success: true})
}

func (h *Handler) account(w http.ResponseWriter, r *http.Request) {
	acc, ls, err := h.licenses.BillingAccount(r.Context(), bearer(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToBillingAccount(*acc, ls))
}

func (h *Handler) addUserToLicense(w http.ResponseWriter, r *http.Request) {
	licenseID, err := convert.ParseID("id", mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req api.AddUserToLicenseRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	userID, err := convert.ParseID("userId", req.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	l, err := h.licenses.AddUserToLicense(r.Context(), bearer(r), licenseID, userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.LicenseResponse{License: convert.ToLicense(*l)})
}

func (h *Handler) refreshLicense(w http.ResponseWriter, r *http.Request) {
	licenseID, err := convert.ParseID("id", mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	l, err := h.licenses.RefreshLicenseToken(r.Context(), bearer(r), licenseID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.LicenseResponse{License: convert.ToLicense(*l)})
}
