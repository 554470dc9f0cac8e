package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/chainkvm/teleop/internal/gateway/policy"
)

// DefaultTTL is the lifetime of an issued token when the request carries
// no explicit TTL; the Issuer's maxTTL caps any requested TTL.
const DefaultTTL = 1 * time.Hour

// IssueRequest carries the minted claim set's inputs.
type IssueRequest struct {
	OperatorDID string
	RobotID     string
	SessionID   string
	Scope       []string
	Limits      policy.Limits
	TTL         time.Duration
}

// Issuer signs capability claim sets with the current signing key.
type Issuer struct {
	keys   *KeySet
	issuer string
	maxTTL time.Duration
}

// NewIssuer creates an Issuer bound to a key set. maxTTL caps any
// requested TTL; a non-positive maxTTL disables the cap.
func NewIssuer(keys *KeySet, issuerName string, maxTTL time.Duration) *Issuer {
	return &Issuer{keys: keys, issuer: issuerName, maxTTL: maxTTL}
}

// Issue signs a new capability token and returns the wire string, its
// token_id, and its expiry.
func (i *Issuer) Issue(req IssueRequest) (tokenString, tokenID string, expiresAt time.Time, err error) {
	ttl := req.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if i.maxTTL > 0 && ttl > i.maxTTL {
		ttl = i.maxTTL
	}

	now := time.Now()
	expiresAt = now.Add(ttl)
	tokenID = uuid.NewString()

	claims := jwt.MapClaims{
		"iss":   i.issuer,
		"sub":   req.OperatorDID,
		"aud":   req.RobotID,
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
		"jti":   tokenID,
		"sid":   req.SessionID,
		"scope": req.Scope,
		"limits": map[string]any{
			"max_control_rate_hz": req.Limits.MaxControlRateHz,
			"max_burst":           req.Limits.MaxBurst,
		},
	}

	jt := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	kid, priv := i.keys.SigningKey()
	jt.Header["kid"] = kid

	tokenString, err = jt.SignedString(priv)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return tokenString, tokenID, expiresAt, nil
}
