package studyauth

import "errors"

var (
	// ErrInvalidCredentials is returned when email/password authentication fails.
	// Unknown email, missing password and wrong password are indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrConflict is returned when an account already exists for the email.
	ErrConflict = errors.New("account already exists")
	// ErrInvalidCode is returned when a verification code is wrong, expired or
	// could not be checked.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrRegistrationExpired is returned when no staged registration exists.
	ErrRegistrationExpired = errors.New("registration expired")
	// ErrAccessDenied is returned when a refresh secret or session does not
	// belong to the caller.
	ErrAccessDenied = errors.New("access denied")
	// ErrDeliveryFailed is returned when a verification code could not be stored or sent.
	ErrDeliveryFailed = errors.New("verification delivery failed")

	// ErrUnauthorized is returned when a session token resolves to no live session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrLoginRateLimited is returned when login attempts exceed the window budget.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrRegistrationRateLimited is returned when registration requests exceed the window budget.
	ErrRegistrationRateLimited = errors.New("registration rate limited")
	// ErrPasswordPolicy is returned when a password violates length rules.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrInvalidEmail is returned for syntactically invalid email input.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrPasswordReuse is returned when a new password equals the current one.
	ErrPasswordReuse = errors.New("new password must differ from current password")
	// ErrUserNotFound is the UserStore result for a missing user.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is the UserStore result for a unique-key violation.
	ErrUserExists = errors.New("user already exists")
	// ErrEngineNotReady is returned when a required collaborator was not configured.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrSessionCreationFailed is returned when the session store rejected a new session.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrExternalIdentityInvalid is returned for incomplete external identities.
	ErrExternalIdentityInvalid = errors.New("external identity invalid")
	// ErrUserStore wraps unexpected failures from the durable user store.
	ErrUserStore = errors.New("user store failure")
	// ErrStoreUnavailable wraps Redis failures on paths that cannot degrade,
	// such as the login throttle check.
	ErrStoreUnavailable = errors.New("ephemeral store unavailable")
	// ErrInvalidProfile is returned for profile edits that fail validation.
	ErrInvalidProfile = errors.New("invalid profile")
)
