// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// privateKey and publicKey sign and verify session tokens. The pair is
// generated at startup, so tokens do not survive a server restart; neither
// do the rooms they point at.
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// tokenExpireSec is how many seconds until token expiration (0 => never).
	tokenExpireSec int
)

// parseTokenExpireTime reads SESSION_TOKEN_EXPIRE_TIME and sets
// tokenExpireSec. Defaults to two hours, matching the maximum room age.
func parseTokenExpireTime() {
	duration := os.Getenv("SESSION_TOKEN_EXPIRE_TIME")
	switch duration {
	case "":
		tokenExpireSec = int((2 * time.Hour).Seconds())
	case "never", "0":
		tokenExpireSec = 0
	default:
		d, err := time.ParseDuration(duration)
		if err != nil {
			fmt.Printf("failed to parse session token expire time: %v\n", err)
			os.Exit(1)
		}
		tokenExpireSec = int(d.Seconds())
	}
}

// Init generates a fresh ed25519 key pair at runtime and sets the token
// expiration.
func Init() {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		fmt.Printf("failed to generate ed25519 key pair: %v\n", err)
		os.Exit(1)
	}
	parseTokenExpireTime()
}

// CreateSessionToken signs a token with "sub" = the player's connection
// identity. Presenting it on a fresh connection reclaims the seat.
func CreateSessionToken(playerID uuid.UUID) (string, error) {
	claims := jwt.MapClaims{
		"sub": playerID.String(),
	}
	if tokenExpireSec > 0 {
		claims["exp"] = time.Now().Add(time.Duration(tokenExpireSec) * time.Second).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// VerifySessionToken checks the signature and returns the player identity.
func VerifySessionToken(tokenString string) (uuid.UUID, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("session token parse error: %w", err)
	}
	if !t.Valid {
		return uuid.Nil, fmt.Errorf("invalid session token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, fmt.Errorf("invalid session token claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("missing sub in session token")
	}
	playerID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("malformed player id in session token: %w", err)
	}
	return playerID, nil
}
