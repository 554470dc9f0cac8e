package token

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

// ErrUnknownKeyID is returned when a kid doesn't resolve against the set.
var ErrUnknownKeyID = errors.New("unknown_key_id")

// keyPair is one Ed25519 signing key identified by kid.
type keyPair struct {
	kid  string
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// KeySet holds the current signing key plus a previous key kept alive
// during a rotation overlap window, mirroring the robot verifier's
// accept-previous-kid-during-rotation behavior.
type KeySet struct {
	current  keyPair
	previous *keyPair
}

// NewKeySet derives a KeySet from a hex-encoded Ed25519 seed for the
// current key and, optionally, one for the previous key.
func NewKeySet(currentKid, currentSeedHex, prevKid, prevSeedHex string) (*KeySet, error) {
	cur, err := deriveKeyPair(currentKid, currentSeedHex)
	if err != nil {
		return nil, err
	}

	ks := &KeySet{current: cur}
	if prevSeedHex != "" {
		prev, err := deriveKeyPair(prevKid, prevSeedHex)
		if err != nil {
			return nil, err
		}
		ks.previous = &prev
	}
	return ks, nil
}

func deriveKeyPair(kid, seedHex string) (keyPair, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil || len(seed) != ed25519.SeedSize {
		return keyPair{}, errors.New("invalid signing key seed")
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return keyPair{kid: kid, priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// SigningKey returns the current signing key and its kid.
func (ks *KeySet) SigningKey() (kid string, priv ed25519.PrivateKey) {
	return ks.current.kid, ks.current.priv
}

// PublicKey resolves a kid to a verification key, including the previous
// key during its overlap window. Unknown kids are rejected.
func (ks *KeySet) PublicKey(kid string) (ed25519.PublicKey, error) {
	if kid == ks.current.kid {
		return ks.current.pub, nil
	}
	if ks.previous != nil && kid == ks.previous.kid {
		return ks.previous.pub, nil
	}
	return nil, ErrUnknownKeyID
}

// JWK is the JSON Web Key shape the robot-side JWKSFetcher parses
// (kty=OKP, crv=Ed25519, kid, x).
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	Kid string `json:"kid"`
	X   string `json:"x"`
	Use string `json:"use"`
}

// JWKS is the document served at GET /.well-known/jwks.json.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWKSDocument renders the key set's current and previous public keys.
func (ks *KeySet) JWKSDocument() JWKS {
	keys := []JWK{jwkFor(ks.current)}
	if ks.previous != nil {
		keys = append(keys, jwkFor(*ks.previous))
	}
	return JWKS{Keys: keys}
}

func jwkFor(kp keyPair) JWK {
	return JWK{
		Kty: "OKP",
		Crv: "Ed25519",
		Kid: kp.kid,
		X:   base64.RawURLEncoding.EncodeToString(kp.pub),
		Use: "sig",
	}
}
