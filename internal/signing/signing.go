// Package signing issues and checks expiring HMAC signatures for document
// download links.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// Sign returns the hex signature for a job id and expiry.
func (s *Signer) Sign(jobID string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(fmt.Sprintf("%s:%d", jobID, expiresUnix)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate checks the signature and rejects expired links.
func (s *Signer) Validate(jobID, expires, signature string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	if s.now().Unix() > exp {
		return false
	}
	return hmac.Equal([]byte(s.Sign(jobID, exp)), []byte(signature))
}

// Query returns the expires and signature parameters for a link valid for ttl.
func (s *Signer) Query(jobID string, ttl time.Duration) url.Values {
	exp := s.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(exp, 10))
	q.Set("signature", s.Sign(jobID, exp))
	return q
}
