package session

import "context"

// SessionRecovery is asked to restore the session after the backend rejected
// a request's credentials. It returns a new access token, or an error such as
// ErrRecoveryDeclined when the user chose to log out.
type SessionRecovery interface {
	Recover(ctx context.Context) (string, error)
}

// RecoveryFunc adapts a function to SessionRecovery.
type RecoveryFunc func(ctx context.Context) (string, error)

func (f RecoveryFunc) Recover(ctx context.Context) (string, error) {
	return f(ctx)
}

// AutoRecovery renews through the coordinator without asking anybody.
// Suitable for non-interactive runs.
func AutoRecovery(c *Coordinator) SessionRecovery {
	return RecoveryFunc(c.Refresh)
}
