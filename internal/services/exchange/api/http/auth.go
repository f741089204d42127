package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/kringleapp/kringle/internal/errors"
)

type contextKey string

const callerIDKey contextKey = "exchange.caller_id"

// callerID returns the authenticated caller identity, empty when the
// request carried no verified token.
func callerID(ctx context.Context) string {
	id, _ := ctx.Value(callerIDKey).(string)
	return id
}

// authMiddleware verifies the bearer token and stashes its subject as
// the caller identity for downstream handlers.
func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, apperrors.New(apperrors.CodeCallerIdentityMissing, "missing authorization header"))
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			writeError(w, apperrors.New(apperrors.CodeCallerIdentityMissing, "invalid authorization header"))
			return
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return a.jwtSecret, nil
		})
		if err != nil || !token.Valid || strings.TrimSpace(claims.Subject) == "" {
			writeError(w, apperrors.Wrap(apperrors.CodeCallerIdentityMissing, "invalid bearer token", err))
			return
		}

		ctx := context.WithValue(r.Context(), callerIDKey, strings.TrimSpace(claims.Subject))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IssueToken mints a signed bearer token for subject, valid for ttl.
// Intended for local development and tests.
func IssueToken(jwtSecret []byte, subject string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("token subject is required")
	}
	now := time.Now()
	claims := &jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
