package signing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSigner(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	s.now = func() time.Time { return time.Unix(1_600_000_000, 0) }

	sig := s.Sign("job123", 1700000000)
	assert.NotEmpty(t, sig)
	assert.True(t, s.Validate("job123", "1700000000", sig))

	assert.False(t, s.Validate("wrong", "1700000000", sig), "wrong job id")
	assert.False(t, s.Validate("job123", "1700000001", sig), "wrong expiry")
	assert.False(t, s.Validate("job123", "soon", sig), "unparseable expiry")
	assert.False(t, NewSigner([]byte("other")).Validate("job123", "1700000000", sig), "other secret")
}

func TestSignerRejectsExpired(t *testing.T) {
	s := NewSigner([]byte("topsecret"))
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	q := s.Query("job123", time.Minute)
	assert.True(t, s.Validate("job123", q.Get("expires"), q.Get("signature")))

	now = now.Add(2 * time.Minute)
	assert.False(t, s.Validate("job123", q.Get("expires"), q.Get("signature")))
}
