package authtoken

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nantokaworks/gacha-vault/internal/types"
)

// Identity is the resolved caller of an authenticated request.
type Identity struct {
	OwnerID string
}

// Verifier resolves a bearer credential to a caller identity or rejects
// it. Token issuance lives in a separate service; this side only checks.
type Verifier interface {
	Verify(token string) (*Identity, error)
}

// HMACVerifier checks HS256-signed tokens with a shared secret. The
// subject claim carries the owner ID.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Verify(tokenString string) (*Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrAuth, err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", types.ErrAuth)
	}
	return &Identity{OwnerID: subject}, nil
}

// Issue signs a token for an owner. Used by tests and by operators
// provisioning agent credentials from the command line.
func Issue(secret, ownerID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": ownerID,
	})
	return token.SignedString([]byte(secret))
}
