package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"speakroom/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	ctxUserID   = "user_id"
	ctxUserName = "user_name"

	tokenIssuer = "speakroom-service"
	tokenTTL    = 72 * time.Hour
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims identify the acting user. The subject is the stable user id.
type Claims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies HS256 bearer tokens.
type Authenticator struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{Secret: []byte(secret), TTL: tokenTTL, Now: time.Now}
}

// IssueToken signs a token for userID with the given display name.
func (a *Authenticator) IssueToken(userID, name string) (string, error) {
	now := a.Now()
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.TTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.Secret)
}

// Parse verifies tokenString and returns its claims.
func (a *Authenticator) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.Secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(a.Now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// bearerToken reads the token from the Authorization header, or from the
// "token" query parameter for websocket upgrades that cannot set headers.
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query("token")
}

// RequireAuth verifies the bearer token and records the user. Every
// authenticated call refreshes the user's display name.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			h.abort(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		claims, err := h.Auth.Parse(tokenString)
		if err != nil {
			h.abort(c, http.StatusUnauthorized, "unauthorized")
			return
		}

		user := &models.User{ID: claims.Subject, DisplayName: claims.Name}
		if err := h.Storage.UpsertUser(c.Request.Context(), user); err != nil {
			h.Logger.Error().Err(err).Str("user_id", claims.Subject).Msg("failed to upsert user")
			h.abort(c, http.StatusServiceUnavailable, "persistence_failed")
			return
		}

		c.Set(ctxUserID, claims.Subject)
		c.Set(ctxUserName, claims.Name)
		c.Next()
	}
}

func currentUser(c *gin.Context) (id, name string) {
	return c.GetString(ctxUserID), c.GetString(ctxUserName)
}

type tokenRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name" binding:"required"`
}

// IssueToken hands out a token for a display name. Development only; in
// production tokens come from the identity provider.
func (h *Handler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.abort(c, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.UserID == "" {
		req.UserID = uuid.NewString()
	}

	token, err := h.Auth.IssueToken(req.UserID, req.Name)
	if err != nil {
		h.abort(c, http.StatusInternalServerError, "internal")
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "user_id": req.UserID})
}
