package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "ulinks"

// Claims is what a token asserts about its bearer. The session store, not the
// token, decides whether the session is still alive.
type Claims struct {
	AccountID string `json:"account_id"`
	IsAdmin   bool   `json:"is_admin"`
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

func signToken(claims *Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// parseToken verifies the signature and the standard claims. A correctly signed
// token that has only run past its expiry is returned together with an error
// matching jwt.ErrTokenExpired so the caller can decide to refresh it.
func parseToken(tokenStr string, secret []byte, now func() time.Time) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithTimeFunc(now),
	)

	if token == nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}
	if claims.AccountID == "" || claims.SessionID == "" {
		return nil, errors.New("token is missing account or session")
	}

	// Claims are validated only after the signature has been verified, so an
	// expiry error implies an authentic token.
	if errors.Is(err, jwt.ErrTokenExpired) {
		return claims, err
	}
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
