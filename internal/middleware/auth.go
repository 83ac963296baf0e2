package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mockupforge/mockupforge/pkg/logger"
)

// AdminClaims are the JWT claims accepted on admin routes.
type AdminClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// AdminAuth guards the admin routes with an HS256 bearer token.
type AdminAuth struct {
	secret []byte
	log    *logger.Logger
}

// NewAdminAuth creates the admin authentication middleware.
func NewAdminAuth(secret string, log *logger.Logger) *AdminAuth {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &AdminAuth{secret: []byte(secret), log: log}
}

// Handler returns the middleware handler. With no secret configured the
// middleware passes everything through, which keeps local development
// friction-free; production deploys set the secret.
func (m *AdminAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.secret) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			m.unauthorized(w, r, "missing bearer token")
			return
		}

		if err := m.validate(parts[1]); err != nil {
			m.log.WithError(err).WithField("path", r.URL.Path).Warn("admin token rejected")
			m.unauthorized(w, r, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *AdminAuth) validate(tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return fmt.Errorf("token invalid")
	}
	return nil
}

func (m *AdminAuth) unauthorized(w http.ResponseWriter, _ *http.Request, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
