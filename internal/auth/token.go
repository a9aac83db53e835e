package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vidrelay/vidrelay/internal/domain"
)

// Identity is the verified subject of a bearer token.
type Identity struct {
	UserID    string
	ExpiresAt time.Time
}

// Verifier validates HMAC-SHA256 signed bearer tokens of the form
// "<payload-b64>.<signature-b64>". The download endpoints do not enforce
// authentication; the notification join path does.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier with the shared signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

type tokenPayload struct {
	UserID    string `json:"sub"`
	ExpiresAt int64  `json:"exp"`
}

// Issue signs a token for the user, valid for ttl.
func (v *Verifier) Issue(userID string, ttl time.Duration) (string, error) {
	payload, err := json.Marshal(tokenPayload{
		UserID:    userID,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("encode token payload: %w", err)
	}

	body := base64.RawURLEncoding.EncodeToString(payload)
	return body + "." + v.sign(body), nil
}

// Verify validates the token signature and expiry and returns the identity.
func (v *Verifier) Verify(token string) (*Identity, error) {
	body, sig, ok := strings.Cut(token, ".")
	if !ok || body == "" || sig == "" {
		return nil, domain.ErrInvalidToken
	}

	if subtle.ConstantTimeCompare([]byte(v.sign(body)), []byte(sig)) != 1 {
		return nil, domain.ErrInvalidToken
	}

	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	var payload tokenPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.UserID == "" {
		return nil, domain.ErrInvalidToken
	}

	expires := time.Unix(payload.ExpiresAt, 0)
	if time.Now().After(expires) {
		return nil, domain.ErrTokenExpired
	}

	return &Identity{UserID: payload.UserID, ExpiresAt: expires}, nil
}

func (v *Verifier) sign(body string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// RoomID derives the notification room for a session token: a short stable
// digest, never the token itself, so the token does not leak into the push
// channel's room namespace.
func RoomID(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:16]
}
