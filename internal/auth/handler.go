package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth/entity"
)

// RefreshCookie is the cookie carrying the refresh token.
const RefreshCookie = "refresh_token"

// Handler exposes the account and credential flows over HTTP.
type Handler struct {
	svc    *Service
	authn  *Authenticator
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, authn *Authenticator, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, authn: authn, logger: logger}
}

type ctxKey struct{}

// UserFromContext returns the user RequireAuth attached to the request.
func UserFromContext(ctx context.Context) (*entity.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*entity.User)
	return u, ok
}

// credentialFromRequest picks the bearer token when one is sent and the
// APP_ID / API_KEY headers otherwise.
func credentialFromRequest(r *http.Request) Credential {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return BearerCredential{Token: strings.TrimSpace(tok)}
		}
	}
	if app, key := r.Header.Get("APP_ID"), r.Header.Get("API_KEY"); app != "" || key != "" {
		return APIKeyCredential{AppID: app, Key: key}
	}
	return BearerCredential{}
}

// RequireAuth rejects requests whose caller cannot be resolved.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var refresh string
		if c, err := r.Cookie(RefreshCookie); err == nil {
			refresh = c.Value
		}
		u, err := h.authn.Resolve(r.Context(), credentialFromRequest(r), refresh)
		if err != nil {
			h.writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, u)))
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.Debugw("invalid payload", "path", r.URL.Path, "err", err)
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return false
	}
	return true
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req NewAccount
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.svc.CreateAccount(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, u)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, err := h.svc.Login(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    sess.RefreshToken,
		Path:     "/",
		MaxAge:   int(h.svc.Config().RefreshTokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	h.writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFromContext(r.Context())
	if err := h.svc.Logout(r.Context(), u.ID); err != nil {
		h.writeError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: RefreshCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFromContext(r.Context())
	h.writeJSON(w, http.StatusOK, u)
}

// VerifyRequest carries either a link token or an emailed code.
type VerifyRequest struct {
	Token string `json:"token"`
	Code  string `json:"code"`
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	var (
		u   *entity.User
		err error
	)
	switch {
	case req.Token != "":
		u, err = h.svc.CompleteVerification(r.Context(), req.Token)
	case req.Code != "":
		u, err = h.svc.ConsumeVerificationCode(r.Context(), req.Code)
	default:
		err = oops.Code("VERIFY_CREDENTIAL_REQUIRED").Wrap(ErrValidation)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, u)
}

// SendRequest asks for a code, or a link when RedirectURL is set.
type SendRequest struct {
	Email       string `json:"email"`
	RedirectURL string `json:"redirect_url"`
	CodeLength  int    `json:"code_length"`
}

func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if !h.decode(w, r, &req) {
		return
	}
	var err error
	if req.RedirectURL != "" {
		_, err = h.svc.ResendVerificationLink(r.Context(), req.Email, req.RedirectURL)
	} else {
		_, err = h.svc.ResendVerificationCode(r.Context(), req.Email, req.CodeLength)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "verification sent"})
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if !h.decode(w, r, &req) {
		return
	}
	var err error
	if req.RedirectURL != "" {
		_, err = h.svc.SendPasswordResetLink(r.Context(), req.Email, req.RedirectURL)
	} else {
		_, err = h.svc.SendPasswordResetCode(r.Context(), req.Email, req.CodeLength)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "password reset sent"})
}

// ResetRequest carries the reset code or token and the new password.
type ResetRequest struct {
	Code     string `json:"code"`
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if !h.decode(w, r, &req) {
		return
	}
	var err error
	switch {
	case req.Token != "":
		err = h.svc.CompletePasswordResetWithToken(r.Context(), req.Token, req.Password)
	case req.Code != "":
		err = h.svc.CompletePasswordResetWithCode(r.Context(), req.Code, req.Password)
	default:
		err = oops.Code("RESET_CREDENTIAL_REQUIRED").Wrap(ErrValidation)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "password change successful"})
}

func (h *Handler) IssueDeviceToken(w http.ResponseWriter, r *http.Request) {
	u, _ := UserFromContext(r.Context())
	dt, err := h.svc.IssueDeviceToken(r.Context(), u)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, dt)
}

// DeviceTokenRequest identifies a device token to check.
type DeviceTokenRequest struct {
	DeviceID string `json:"device_id"`
	Token    string `json:"token"`
}

func (h *Handler) CheckDeviceToken(w http.ResponseWriter, r *http.Request) {
	var req DeviceTokenRequest
	if !h.decode(w, r, &req) {
		return
	}
	dt, err := h.svc.GetDeviceToken(r.Context(), req.DeviceID, req.Token)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, dt)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrExpired):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := map[string]string{"error": strings.ToLower(http.StatusText(status))}
	if oe, ok := oops.AsOops(err); ok {
		if code := fmt.Sprint(oe.Code()); code != "" {
			body["code"] = code
		}
	}
	if status == http.StatusInternalServerError {
		h.logger.Errorw("request failed", "err", err)
		body = map[string]string{"error": "internal error"}
	} else {
		h.logger.Debugw("request rejected", "status", status, "err", err)
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	h.writeJSON(w, status, body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warnw("write response failed", "err", err)
	}
}

// Register mounts the auth routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/signup", h.Signup)
	mux.HandleFunc("POST /auth/login", h.Login)
	mux.Handle("POST /auth/logout", h.RequireAuth(http.HandlerFunc(h.Logout)))
	mux.Handle("GET /auth/me", h.RequireAuth(http.HandlerFunc(h.Me)))
	mux.HandleFunc("POST /auth/verify", h.Verify)
	mux.HandleFunc("POST /auth/verify/resend", h.ResendVerification)
	mux.HandleFunc("POST /auth/password/forgot", h.ForgotPassword)
	mux.HandleFunc("POST /auth/password/reset", h.ResetPassword)
	mux.Handle("POST /auth/device-token", h.RequireAuth(http.HandlerFunc(h.IssueDeviceToken)))
	mux.HandleFunc("POST /auth/device-token/check", h.CheckDeviceToken)
}
