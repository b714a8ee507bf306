package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const (
	tokenKey   = "bearer_token"
	subjectKey = "token_subject"
)

// Middleware extracts the bearer token handed in by the embedding
// application. The token is an opaque credential for the profile service;
// it is passed through, not validated here. When it happens to be a JWT the
// subject claim is surfaced for request logging only.
func Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "Missing Authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid Authorization header format")
		}

		token := parts[1]
		c.Set(tokenKey, token)

		if subject := peekSubject(token); subject != "" {
			c.Set(subjectKey, subject)
		}

		return next(c)
	}
}

// Token returns the bearer token stashed by Middleware.
func Token(c echo.Context) string {
	if token, ok := c.Get(tokenKey).(string); ok {
		return token
	}
	return ""
}

// Subject returns the JWT subject claim when the token carried one.
func Subject(c echo.Context) string {
	if subject, ok := c.Get(subjectKey).(string); ok {
		return subject
	}
	return ""
}

// peekSubject decodes the claims without verifying the signature. The
// profile service is the authority on the token; we only want an identity
// hint for logs.
func peekSubject(token string) string {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return ""
	}
	subject, err := parsed.Claims.GetSubject()
	if err != nil {
		return ""
	}
	return subject
}
