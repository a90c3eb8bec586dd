package handler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUnauthenticated is the root of every session verification failure.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrMissingToken means the request carried no bearer token at all.
	ErrMissingToken = fmt.Errorf("%w: no authorization token found", ErrUnauthenticated)
)

// SessionVerifier resolves the caller's user ID from the platform session
// token. Sessions are HS256 JWTs whose subject is the user ID.
type SessionVerifier struct {
	secret   []byte
	audience string
}

// NewSessionVerifier creates a verifier for tokens signed with secret.
// An empty audience disables the audience check.
func NewSessionVerifier(secret, audience string) *SessionVerifier {
	return &SessionVerifier{secret: []byte(secret), audience: audience}
}

// Header looks a header up case-insensitively; API Gateway does not normalize them.
func Header(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// GetUserID extracts the user ID from the Authorization header.
func (v *SessionVerifier) GetUserID(req events.APIGatewayProxyRequest) (string, error) {
	authHeader := Header(req, "Authorization")
	tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || strings.TrimSpace(tokenString) == "" {
		return "", ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(strings.TrimSpace(tokenString), claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: invalid token: %v", ErrUnauthenticated, err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: invalid token claims", ErrUnauthenticated)
	}
	return claims.Subject, nil
}
