package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrEthical07/studyauth"
	"github.com/MrEthical07/studyauth/middleware"
	"github.com/MrEthical07/studyauth/oauth"
)

const defaultMaxBodyBytes = 16 << 10

// Handler serves the /auth routes on top of a studyauth.Engine.
type Handler struct {
	engine    *studyauth.Engine
	verifiers *oauth.Registry
	cookies   CookieConfig
	maxBody   int64
	logger    *slog.Logger
}

type registerBody struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type verifyBody struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshBody struct {
	UserID        string `json:"userId"`
	RefreshSecret string `json:"refreshSecret"`
}

// oauthBody carries an ID token (google, apple) or an authorization code
// (github). IDToken wins when both are set.
type oauthBody struct {
	IDToken string `json:"idToken"`
	Code    string `json:"code"`
}

type changePasswordBody struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type resetRequestBody struct {
	Email string `json:"email"`
}

type resetConfirmBody struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

type accountTypeResponse struct {
	AccountType studyauth.AccountType `json:"accountType"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type refreshSecretResponse struct {
	RefreshSecret string `json:"refreshSecret"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerBody
	if !h.decode(w, r, &body) {
		return
	}
	err := h.engine.Register(r.Context(), studyauth.RegisterRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, statusResponse{Status: "verification_sent"})
}

func (h *Handler) VerifyRegistration(w http.ResponseWriter, r *http.Request) {
	var body verifyBody
	if !h.decode(w, r, &body) {
		return
	}
	result, err := h.engine.VerifyRegistration(r.Context(), body.Email, body.Code)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.setSessionCookie(w, result.Session)
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginBody
	if !h.decode(w, r, &body) {
		return
	}
	result, err := h.engine.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.setSessionCookie(w, result.Session)
	writeJSON(w, http.StatusOK, result)
}

// Refresh accepts the current session token from the cookie or Bearer
// header when present and rotates it alongside the refresh secret.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshBody
	if !h.decode(w, r, &body) {
		return
	}
	token, _ := middleware.SessionToken(r)
	result, err := h.engine.RefreshSession(r.Context(), studyauth.RefreshRequest{
		UserID:        body.UserID,
		RefreshSecret: body.RefreshSecret,
		SessionToken:  token,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if result.Session != nil {
		h.setSessionCookie(w, *result.Session)
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, _ := middleware.PrincipalFromContext(r.Context())
	token, _ := middleware.SessionTokenFromContext(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}
	if err := h.engine.Logout(r.Context(), principal.UserID, token); err != nil {
		h.fail(w, r, err)
		return
	}
	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AccountType(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	accountType, err := h.engine.CheckAccountType(r.Context(), email)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accountTypeResponse{AccountType: accountType})
}

func (h *Handler) OAuth(w http.ResponseWriter, r *http.Request) {
	verifier, ok := h.verifiers.Lookup(chi.URLParam(r, "provider"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_provider", "unknown provider")
		return
	}
	var body oauthBody
	if !h.decode(w, r, &body) {
		return
	}
	raw := body.IDToken
	if raw == "" {
		raw = body.Code
	}
	identity, err := verifier.Verify(r.Context(), raw)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.engine.OAuthComplete(r.Context(), identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.setSessionCookie(w, result.Session)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}
	profile, err := h.engine.Profile(r.Context(), principal.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}
	var body studyauth.ProfileUpdate
	if !h.decode(w, r, &body) {
		return
	}
	profile, err := h.engine.UpdateProfile(r.Context(), principal.UserID, body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}
	var body changePasswordBody
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.engine.ChangePassword(r.Context(), principal.UserID, body.OldPassword, body.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequestPasswordReset always answers 202 for enabled resets so the
// response does not reveal whether the email has an account.
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var body resetRequestBody
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.engine.RequestPasswordReset(r.Context(), body.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, statusResponse{Status: "reset_requested"})
}

func (h *Handler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var body resetConfirmBody
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.engine.ConfirmPasswordReset(r.Context(), body.Email, body.Code, body.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) IssueRefreshSecret(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}
	secret, err := h.engine.IssueRefreshSecret(r.Context(), principal.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, refreshSecretResponse{RefreshSecret: secret})
}

func (h *Handler) RevokeRefreshSecret(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}
	if err := h.engine.RevokeRefresh(r.Context(), principal.UserID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body")
		return false
	}
	return true
}

// fail writes the mapped error. Only 5xx causes are logged; their detail
// never reaches the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusNotImplemented {
		h.logger.ErrorContext(r.Context(), "auth request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeError(w, status, code, publicMessage(code))
}

func publicMessage(code string) string {
	return strings.ReplaceAll(code, "_", " ")
}
