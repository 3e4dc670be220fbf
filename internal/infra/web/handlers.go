package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"marketplace-billing/internal/domain"
	"marketplace-billing/internal/domain/model"
	"marketplace-billing/internal/domain/ports/adapter"
	"marketplace-billing/internal/infra/logging"
	"marketplace-billing/internal/infra/metrics"
	"marketplace-billing/internal/infra/payment"
	"marketplace-billing/internal/usecase"
)

const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"

	signatureHeader = "X-Webhook-Signature"

	maxWebhookBody = 1 << 20
)

type checkoutCreateRequest struct {
	UserID        string `json:"userId"`
	UserType      string `json:"userType"`
	Plan          string `json:"plan"`
	PaymentType   string `json:"paymentType"`
	ApplicationID string `json:"applicationId"`
}

type basicTierRequest struct {
	UserType string `json:"userType"`
}

func (s *Server) handleCheckoutCreate(w http.ResponseWriter, r *http.Request) {
	var req checkoutCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Price ids are never taken from the client; they come from configuration
	// keyed by tenant type.
	result, err := s.checkoutUC.Initiate(r.Context(), usecase.InitiateParams{
		AccessToken:   s.accessToken(r),
		RefreshToken:  s.refreshToken(r),
		TenantID:      req.UserID,
		TenantType:    model.TenantType(req.UserType),
		Plan:          req.Plan,
		PaymentType:   model.PaymentType(req.PaymentType),
		ApplicationID: req.ApplicationID,
	})
	if err != nil {
		s.log.Error().Err(err).Str("user_type", req.UserType).Msg("checkout initiation failed")
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"url":       result.RedirectURL,
		"sessionId": result.SessionID,
	})
}

func (s *Server) handleBasicTier(w http.ResponseWriter, r *http.Request) {
	var req basicTierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	t, err := model.ParseTenantType(req.UserType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.checkoutUC.SelectBasicTier(r.Context(), s.accessToken(r), t); err != nil {
		s.log.Error().Err(err).Str("user_type", req.UserType).Msg("basic tier selection failed")
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePaymentReturn(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	success := q.Get("success") == "true" ||
		q.Get("payment_success") == "true" ||
		q.Get("payment_completed") == "true"

	result, err := s.returnUC.Process(r.Context(), usecase.ReturnParams{
		AccessToken:  s.accessToken(r),
		RefreshToken: s.refreshToken(r),
		State:        q.Get("state"),
		SessionID:    q.Get("session_id"),
		TypeHint:     q.Get("user_type"),
		SuccessFlag:  success,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("payment return processing failed")
		s.renderError(w, "We could not verify your payment session. Your payment is safe and will be reflected in your account shortly.")
		return
	}

	if result.Refreshed != nil {
		s.setSessionCookies(w, result.Refreshed)
	}

	switch result.Outcome {
	case usecase.OutcomeReauth:
		s.renderCountdown(w, countdownData{
			Heading:     "Payment received",
			Message:     "Your payment went through, but your session expired during checkout. Please sign in again to see your updated subscription.",
			RedirectURL: result.LoginURL,
			Seconds:     5,
		})
	default:
		s.renderCountdown(w, countdownData{
			Heading:     "Payment verified",
			Message:     "Your subscription has been updated. Taking you back now.",
			RedirectURL: result.LandingRoute,
			Seconds:     5,
		})
	}
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		metrics.IncWebhookRejected("unreadable_body")
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if !payment.VerifyWebhookSignature(s.webhookSecret, body, r.Header.Get(signatureHeader)) {
		metrics.IncWebhookRejected("bad_signature")
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	ev, err := model.ParseWebhookEvent(body)
	if err != nil {
		metrics.IncWebhookRejected("malformed")
		writeError(w, http.StatusBadRequest, "malformed event")
		return
	}

	ctx := logging.WithEventID(r.Context(), ev.ID)
	if err := s.webhookUC.Process(ctx, ev); err != nil {
		s.log.Error().Err(err).Str("event_id", ev.ID).Str("event_type", string(ev.Type)).Msg("webhook processing failed")
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

// ===== token extraction =====

func (s *Server) accessToken(r *http.Request) string {
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		if strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
			return strings.TrimSpace(hdr[7:])
		}
	}
	if c, err := r.Cookie(accessCookie); err == nil {
		return c.Value
	}
	return ""
}

func (s *Server) refreshToken(r *http.Request) string {
	if hdr := r.Header.Get("X-Refresh-Token"); hdr != "" {
		return hdr
	}
	if c, err := r.Cookie(refreshCookie); err == nil {
		return c.Value
	}
	return ""
}

func (s *Server) setSessionCookies(w http.ResponseWriter, pair *adapter.TokenPair) {
	// Lax, not Strict: the return page is a top-level navigation from the
	// gateway's origin.
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookie,
		Value:    pair.AccessToken,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    pair.RefreshToken,
		Path:     "/",
		MaxAge:   int((30 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// ===== response helpers =====

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrUnknownTenantType):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrTenantNotFound), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
