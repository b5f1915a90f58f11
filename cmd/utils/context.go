package utils

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/fitlink-app/fitlink-server/cmd/models"
	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const (
	AccountIDKey contextKey = "accountID"
	RoleKey      contextKey = "role"
)

// AccessClaims is the token payload: the subject is the account id and Role is
// the account's role at issue time.
type AccessClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func GetAccountIDFromContext(ctx context.Context) (uint, error) {
	accountID, ok := ctx.Value(AccountIDKey).(uint)
	if !ok {
		return 0, errors.New("account ID not found in context")
	}
	return accountID, nil
}

func GetRoleFromContext(ctx context.Context) (string, error) {
	role, ok := ctx.Value(RoleKey).(string)
	if !ok {
		return "", errors.New("role not found in context")
	}
	return role, nil
}

// ResolveToken validates a bearer token and returns the caller's identity.
// It is shared by the HTTP middleware and the WebSocket gateway's connect-time
// credential resolution.
func ResolveToken(tokenString string) (uint, string, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(os.Getenv("SECRET_KEY")), nil
	})
	if err != nil || !token.Valid {
		return 0, "", models.NewAuthError("invalid token")
	}

	accountID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return 0, "", models.NewAuthError("invalid account ID in token")
	}

	return uint(accountID), claims.Role, nil
}

func AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.Replace(authHeader, "Bearer ", "", 1)

		accountID, role, err := ResolveToken(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), AccountIDKey, accountID)
		ctx = context.WithValue(ctx, RoleKey, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}
