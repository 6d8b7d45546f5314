package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ClientIDKey is the gin context key holding the authenticated client id.
const ClientIDKey = "clientID"

// AuthMiddleware creates a Gin middleware for JWT authentication
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}

		clientID, err := ValidateToken(authHeader, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		c.Set(ClientIDKey, clientID)
		c.Next()
	}
}

// ValidateToken validates an access token and returns the client id it was
// issued to. A "Bearer " prefix is accepted.
func ValidateToken(tokenString, jwtSecret string) (string, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	if tokenString == "" {
		return "", errors.New("bearer token required")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return "", errors.New("invalid token")
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		if claims["type"] != "access" {
			return "", errors.New("invalid token type")
		}

		clientID, ok := claims["id"].(string)
		if !ok || clientID == "" {
			return "", errors.New("invalid token claims")
		}

		return clientID, nil
	}

	return "", errors.New("invalid token")
}

// GenerateAccessToken signs an HS256 access token for clientID.
func GenerateAccessToken(jwtSecret, clientID string, ttl time.Duration) (string, error) {
	if jwtSecret == "" {
		return "", errors.New("jwt secret required")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"id":   clientID,
		"type": "access",
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
}
