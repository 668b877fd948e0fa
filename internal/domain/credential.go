package domain

import (
	"strings"
	"time"
)

// Credential is a stored OAuth grant for one (provider, owner) pair. Tokens
// are kept encoded; see utils.SecretCodec.
type Credential struct {
	ID                  int64      `json:"id" db:"id"`
	Provider            string     `json:"provider" db:"provider"`
	UserEmail           string     `json:"user_email" db:"user_email"`
	UserCode            *string    `json:"user_code" db:"user_code"`
	EncodedToken        string     `json:"-" db:"encoded_token"`
	EncodedRefreshToken *string    `json:"-" db:"encoded_refresh_token"`
	ExpiresAt           *time.Time `json:"expires_at" db:"expires_at"`
	IsActive            bool       `json:"is_active" db:"is_active"`
	CreatedAt           time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" db:"updated_at"`
}

// IsExpired reports whether the access token is expired, or will be within
// margin. A credential without an expiry never expires.
func (c *Credential) IsExpired(now time.Time, margin time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Add(margin).Before(*c.ExpiresAt)
}

// CanRefresh reports whether refresh metadata is present
func (c *Credential) CanRefresh() bool {
	return c.EncodedRefreshToken != nil && *c.EncodedRefreshToken != ""
}

// OwnerKey identifies the owner for locking and logging: the code when known, else the email
func (c *Credential) OwnerKey() string {
	if c.UserCode != nil && *c.UserCode != "" {
		return *c.UserCode
	}
	return c.UserEmail
}

// TokenGrant is the outcome of a provider refresh exchange. ExpiresAt is nil
// when the provider did not say how long the token lives.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// SessionTokens carries provider bearer tokens found in the caller's
// session, keyed by provider name.
type SessionTokens map[string]string

// Token returns the session token for provider, if any
func (s SessionTokens) Token(provider string) (string, bool) {
	if s == nil {
		return "", false
	}
	token := strings.TrimSpace(s[provider])
	return token, token != ""
}
