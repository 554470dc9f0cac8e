package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrMissingKid       = errors.New("token missing kid header")
)

// VerifiedClaims holds the claims the signaling room and revocation
// path need out of a presented capability token.
type VerifiedClaims struct {
	TokenID   string
	SessionID string
	Subject   string
	Scope     []string
	ExpiresAt time.Time
}

// Verifier checks capability tokens against a KeySet, resolving the
// signing key by the token's own `kid` header so a rotation overlap
// window verifies both the current and previous key.
type Verifier struct {
	keys *KeySet
}

// NewVerifier creates a Verifier bound to a key set.
func NewVerifier(keys *KeySet) *Verifier {
	return &Verifier{keys: keys}
}

// Verify parses and validates a capability token's signature and
// expiry, without checking session binding (callers that need an
// exact session_id match do that against the returned claims).
func (v *Verifier) Verify(tokenString string) (VerifiedClaims, error) {
	jt, err := jwt.Parse(tokenString, v.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return VerifiedClaims{}, ErrTokenExpired
		}
		return VerifiedClaims{}, ErrInvalidSignature
	}

	claims, ok := jt.Claims.(jwt.MapClaims)
	if !ok || !jt.Valid {
		return VerifiedClaims{}, ErrInvalidSignature
	}

	return extractClaims(claims), nil
}

func (v *Verifier) keyFunc(jt *jwt.Token) (any, error) {
	if _, ok := jt.Method.(*jwt.SigningMethodEd25519); !ok {
		return nil, ErrInvalidSignature
	}
	kid, ok := jt.Header["kid"].(string)
	if !ok || kid == "" {
		return nil, ErrMissingKid
	}
	return v.keys.PublicKey(kid)
}

func extractClaims(claims jwt.MapClaims) VerifiedClaims {
	sid, _ := claims["sid"].(string)
	sub, _ := claims["sub"].(string)
	jti, _ := claims["jti"].(string)

	var expiresAt time.Time
	if exp, ok := claims["exp"].(float64); ok {
		expiresAt = time.Unix(int64(exp), 0)
	}

	var scope []string
	if raw, ok := claims["scope"].([]any); ok {
		scope = make([]string, 0, len(raw))
		for _, s := range raw {
			if str, ok := s.(string); ok {
				scope = append(scope, str)
			}
		}
	}

	return VerifiedClaims{
		TokenID:   jti,
		SessionID: sid,
		Subject:   sub,
		Scope:     scope,
		ExpiresAt: expiresAt,
	}
}
