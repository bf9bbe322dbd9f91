package studyauth

import (
	"context"
	"errors"
	"fmt"
)

// CheckAccountType reports how email can sign in. It never mutates state.
func (e *Engine) CheckAccountType(ctx context.Context, email string) (AccountType, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return AccountNone, err
	}

	user, err := e.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return AccountNone, nil
		}
		return AccountNone, fmt.Errorf("%w: %v", ErrUserStore, err)
	}

	switch {
	case user.HasPassword() && user.HasExternalIdentity():
		return AccountLinked, nil
	case user.HasPassword():
		return AccountPassword, nil
	case user.HasExternalIdentity():
		return AccountExternal, nil
	default:
		return AccountNone, nil
	}
}
