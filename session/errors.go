package session

import "errors"

var (
	// ErrNoRefreshToken indicates that no refresh token is stored, so the
	// session cannot be renewed.
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrRefreshFailed wraps every reason a renewal did not produce a token.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrRenewalPending means an earlier renewal call that timed out has not
	// returned yet.
	ErrRenewalPending = errors.New("previous renewal still running")

	// ErrRecoveryDeclined is returned by a SessionRecovery when the user
	// chose not to extend the session.
	ErrRecoveryDeclined = errors.New("session recovery declined")

	// ErrIncompletePair is returned when saving a credential pair that is
	// missing its access or refresh token.
	ErrIncompletePair = errors.New("credential pair must contain both access and refresh token")
)
