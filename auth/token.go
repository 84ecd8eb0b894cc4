// Package auth implements the identity collaborator consumed by the gateway.
// Handshakes carry the credential explicitly (there is no cookie session on a
// persistent connection); the core only ever sees the verified participant.
package auth

import (
	"chat-presence/domain"
	"chat-presence/errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// Verifier validates handshake credentials and, for local tooling, mints them.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret string) Verifier {
	return Verifier{secret: []byte(secret), issuer: "chat-presence"}
}

// Mint creates a signed JWT for a participant, using HS256 (HMAC with SHA256).
func (v Verifier) Mint(p domain.Participant, ttl time.Duration) (string, error) {
	claims := &CustomClaims{
		UserID: p.ID,
		Name:   p.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    v.issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify parses and validates the signature and expiration of a credential,
// returning the participant it identifies.
func (v Verifier) Verify(credential string) (domain.Participant, error) {
	if credential == "" {
		return domain.Participant{}, errors.ErrMissingCredential
	}

	token, err := jwt.ParseWithClaims(credential, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return domain.Participant{}, fmt.Errorf("%w: %v", errors.ErrInvalidCredential, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return domain.Participant{}, errors.ErrInvalidCredential
	}

	name := claims.Name
	if name == "" {
		name = "Anonymous"
	}
	return domain.Participant{ID: claims.UserID, Name: name}, nil
}
