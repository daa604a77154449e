// Package auth verifies the bearer tokens issued by the external identity
// provider and extracts the owner id from them.
package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	claimSubject = "sub"
	claimUserID  = "user_id"
	contextKey   = "user"
)

// JWTMiddleware returns a JWT auth middleware configured for HS256 tokens.
func JWTMiddleware(secret string, skipper middleware.Skipper) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: "HS256",
		ContextKey:    contextKey,
		TokenLookup:   "header:Authorization:Bearer ,query:token",
		Skipper:       skipper,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
	})
}

// OwnerIDFromContext extracts the owner id from JWT claims, preferring
// user_id over sub.
func OwnerIDFromContext(c echo.Context) (string, error) {
	token, ok := c.Get(contextKey).(*jwt.Token)
	if !ok || token == nil || !token.Valid {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	if ownerID := strings.TrimSpace(claimString(claims, claimUserID)); ownerID != "" {
		return ownerID, nil
	}
	if ownerID := strings.TrimSpace(claimString(claims, claimSubject)); ownerID != "" {
		return ownerID, nil
	}
	return "", echo.NewHTTPError(http.StatusUnauthorized, "owner id missing")
}

// GenerateToken creates a signed JWT for the owner. Production tokens come
// from the identity provider; this is used by the token command.
func GenerateToken(ownerID, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(ownerID) == "" {
		return "", time.Time{}, fmt.Errorf("owner id is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	claims := jwt.MapClaims{
		claimSubject: ownerID,
		claimUserID:  ownerID,
		"iat":        now.Unix(),
		"exp":        expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(raw)
	}
}
