package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultThreshold is how long before expiry an access token is renewed
// proactively. It must cover a renewal round-trip under normal latency.
const DefaultThreshold = 60 * time.Second

var errNoExpiry = errors.New("token has no exp claim")

// unverified decodes claims only; the backend owns signature trust.
var unverified = jwt.NewParser()

// ExpiresAt decodes the exp claim of a JWT without verifying its signature.
func ExpiresAt(token string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := unverified.ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to decode token: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, errNoExpiry
	}
	return exp.Time, nil
}

// IsExpired reports whether token is past its expiry. Undecodable tokens
// are treated as expired.
func IsExpired(token string) bool {
	return isExpiringWithin(token, 0, time.Now())
}

// IsExpiringSoon reports whether token expires within threshold from now.
// Undecodable tokens are treated as expired.
func IsExpiringSoon(token string, threshold time.Duration) bool {
	return isExpiringWithin(token, threshold, time.Now())
}

func isExpiringWithin(token string, threshold time.Duration, now time.Time) bool {
	exp, err := ExpiresAt(token)
	if err != nil {
		return true
	}
	return !now.Add(threshold).Before(exp)
}
