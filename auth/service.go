// Package auth validates bearer credentials presented during the websocket
// handshake. Token issuance belongs to the platform's auth authority; this
// service only verifies what it is handed.
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/planquant/collab/internal/slogging"
)

// Identity is the validated principal behind a credential.
type Identity struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

// Error is returned for any credential that cannot be accepted. It is
// terminal for the handshake: no session state exists when it is returned.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CredentialValidator is the external validation collaborator consumed by the
// collaboration engine. Implementations may be slow or unavailable; callers
// bound the call with a context deadline.
type CredentialValidator interface {
	ValidateCredential(ctx context.Context, token string) (*Identity, error)
}

// JWTValidator validates HS256 tokens issued by the platform auth authority.
// When a revocation list is attached, revoked tokens are rejected even if
// their signature and expiry are still good.
type JWTValidator struct {
	secret      []byte
	revocations *RevocationList
	logger      *slogging.Logger
}

// NewJWTValidator creates a validator for the given shared secret. The
// revocation list is optional; pass nil to skip revocation checks.
func NewJWTValidator(secret string, revocations *RevocationList) *JWTValidator {
	return &JWTValidator{
		secret:      []byte(secret),
		revocations: revocations,
		logger:      slogging.Get(),
	}
}

// ValidateCredential verifies the token signature, expiry, and revocation
// status, and extracts the identity claims.
func (v *JWTValidator) ValidateCredential(ctx context.Context, tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, &Error{Reason: "missing credential"}
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		v.logger.Warn("Credential rejected: token parse failed error=%v", err)
		return nil, &Error{Reason: "invalid or expired token", Err: err}
	}
	if !token.Valid {
		v.logger.Warn("Credential rejected: token invalid")
		return nil, &Error{Reason: "invalid or expired token"}
	}

	if v.revocations != nil {
		revoked, err := v.revocations.IsRevoked(ctx, tokenString)
		if err != nil {
			// The revocation store is down or the deadline expired; the spec
			// treats validation as fail-closed for the handshake.
			v.logger.Error("Credential rejected: revocation check failed error=%v", err)
			return nil, &Error{Reason: "credential validation unavailable", Err: err}
		}
		if revoked {
			v.logger.Warn("Credential rejected: token revoked")
			return nil, &Error{Reason: "token revoked"}
		}
	}

	identity, err := identityFromClaims(claims)
	if err != nil {
		v.logger.Warn("Credential rejected: %v", err)
		return nil, &Error{Reason: "incomplete identity claims", Err: err}
	}

	v.logger.Debug("Credential validated user_id=%s email=%s role=%s",
		identity.UserID, identity.Email, identity.Role)
	return identity, nil
}

func identityFromClaims(claims jwt.MapClaims) (*Identity, error) {
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("missing sub claim")
	}
	email, _ := claims["email"].(string)
	if email == "" {
		return nil, fmt.Errorf("missing email claim")
	}
	role, _ := claims["role"].(string)
	if role == "" {
		role = "viewer"
	}

	// Display name falls back to the email local part when the issuer does
	// not include a name claim.
	name, _ := claims["name"].(string)
	if name == "" {
		name = email
		for i, r := range email {
			if r == '@' {
				name = email[:i]
				break
			}
		}
	}

	return &Identity{
		UserID:      sub,
		Email:       email,
		DisplayName: name,
		Role:        role,
	}, nil
}
