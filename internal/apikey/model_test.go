package apikey

import (
	"testing"
	"time"
)

func TestAPIKey_ExpiredAt(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}

	tests := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{"no expiration", nil, false},
		{"expired an hour ago", at(-time.Hour), true},
		{"expires in an hour", at(time.Hour), false},
		{"expires exactly now", at(0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := &APIKey{ExpiresAt: tt.expiresAt}
			if got := key.ExpiredAt(now); got != tt.want {
				t.Errorf("ExpiredAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAPIKey_Hint(t *testing.T) {
	key := &APIKey{Prefix: "sk-live-0123abcd"}
	if got := key.Hint(); got != "sk-live-0123..." {
		t.Errorf("Hint() = %q", got)
	}
	if got := (&APIKey{Prefix: "sk"}).Hint(); got != "sk..." {
		t.Errorf("short Hint() = %q", got)
	}
}
