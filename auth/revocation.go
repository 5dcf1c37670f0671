package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"github.com/planquant/collab/internal/slogging"
)

// RevocationList tracks revoked JWT tokens in Redis. Entries carry a TTL
// matching the token expiry, so Redis expires them on its own.
type RevocationList struct {
	redis  *redis.Client
	secret []byte
}

// NewRevocationList creates a revocation list backed by the given Redis client
func NewRevocationList(redisClient *redis.Client, secret string) *RevocationList {
	slogging.Get().Info("Initializing token revocation list")
	return &RevocationList{
		redis:  redisClient,
		secret: []byte(secret),
	}
}

// Revoke adds a token to the revocation list until it expires on its own.
// Already-expired tokens are skipped.
func (rl *RevocationList) Revoke(ctx context.Context, tokenString string) error {
	logger := slogging.Get()

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return rl.secret, nil
	})
	if err != nil || !token.Valid {
		return fmt.Errorf("failed to parse or validate token: %w", err)
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return fmt.Errorf("token missing expiration")
	}

	ttl := time.Until(time.Unix(int64(exp), 0))
	if ttl <= 0 {
		logger.Debug("Token already expired, skipping revocation")
		return nil
	}

	key := rl.key(tokenString)
	if err := rl.redis.Set(ctx, key, "revoked", ttl).Err(); err != nil {
		logger.Error("Failed to store revoked token error=%v", err)
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	logger.Info("Token revoked ttl_seconds=%d", int(ttl.Seconds()))
	return nil
}

// IsRevoked checks whether a token is on the revocation list
func (rl *RevocationList) IsRevoked(ctx context.Context, tokenString string) (bool, error) {
	exists, err := rl.redis.Exists(ctx, rl.key(tokenString)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revocation list: %w", err)
	}
	return exists > 0, nil
}

// key hashes the token so raw credentials never land in Redis
func (rl *RevocationList) key(token string) string {
	hash := sha256.Sum256([]byte(token))
	return "revoked:token:" + hex.EncodeToString(hash[:])
}
