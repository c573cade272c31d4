package apikey

import "time"

// APIKey authenticates a hosting application (client) against the liveness
// API. Only the hash of the secret is stored.
type APIKey struct {
	ID         string     `gorm:"primaryKey" json:"id"`
	ClientID   string     `gorm:"not null;index" json:"client_id"`
	Name       string     `gorm:"not null" json:"name"`
	Prefix     string     `gorm:"uniqueIndex;not null" json:"-"`
	SecretHash string     `gorm:"not null" json:"-"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ExpiredAt reports whether the key is no longer valid at now. A key
// without an expiry never expires.
func (k *APIKey) ExpiredAt(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// Hint is the displayable part of the secret, safe to show in listings.
func (k *APIKey) Hint() string {
	if len(k.Prefix) <= len(secretPrefix) {
		return k.Prefix + "..."
	}
	return k.Prefix[:len(secretPrefix)+4] + "..."
}
