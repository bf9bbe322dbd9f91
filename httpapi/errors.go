package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/studyauth"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{studyauth.ErrInvalidEmail, http.StatusBadRequest, "invalid_email"},
	{studyauth.ErrPasswordPolicy, http.StatusBadRequest, "password_policy"},
	{studyauth.ErrInvalidProfile, http.StatusBadRequest, "invalid_profile"},
	{studyauth.ErrPasswordReuse, http.StatusBadRequest, "password_reuse"},
	{studyauth.ErrInvalidCode, http.StatusBadRequest, "invalid_code"},
	{studyauth.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{studyauth.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{studyauth.ErrExternalIdentityInvalid, http.StatusUnauthorized, "invalid_identity"},
	{studyauth.ErrAccessDenied, http.StatusForbidden, "access_denied"},
	{studyauth.ErrConflict, http.StatusConflict, "conflict"},
	{studyauth.ErrUserExists, http.StatusConflict, "conflict"},
	{studyauth.ErrRegistrationExpired, http.StatusGone, "registration_expired"},
	{studyauth.ErrLoginRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{studyauth.ErrRegistrationRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{studyauth.ErrDeliveryFailed, http.StatusBadGateway, "delivery_failed"},
	{studyauth.ErrEngineNotReady, http.StatusNotImplemented, "not_enabled"},
	{studyauth.ErrStoreUnavailable, http.StatusServiceUnavailable, "unavailable"},
}

// statusFor maps an Engine error to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}
