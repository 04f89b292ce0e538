package daraja

import (
	"strconv"
	"time"
)

const (
	defaultTokenLifetime = 3500 * time.Second
	tokenExpiryMargin    = 100 * time.Second
)

// Token is a cached OAuth access token.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

func (t Token) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// tokenLifetime trusts expires_in only when it leaves room for the safety margin.
func tokenLifetime(expiresIn string) time.Duration {
	seconds, err := strconv.Atoi(expiresIn)
	if err != nil {
		return defaultTokenLifetime
	}
	lifetime := time.Duration(seconds)*time.Second - tokenExpiryMargin
	if lifetime <= 0 {
		return defaultTokenLifetime
	}
	return lifetime
}
