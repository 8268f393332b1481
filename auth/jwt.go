package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
)

var hmacSecret = []byte("WjdwZUh2dWJGdFB1UWRybg==")

// SetSecret overrides the signing secret, called once at startup from
// config.
func SetSecret(secret string) {
	if secret != "" {
		hmacSecret = []byte(secret)
	}
}

type ExpireTime int

const (
	AWeek  ExpireTime = 604800
	ADay   ExpireTime = 86400
	AnHour ExpireTime = 3600
)

// Claims carries the authenticated actor. Engine calls still take
// explicit actor ids; the claims only guard the transport.
type Claims struct {
	ID  string `json:"id"`
	Usr string `json:"usr"`
	jwt.StandardClaims
}

func (c *Claims) GetUID() string {
	return c.ID
}

func (c *Claims) GetUsername() string {
	return c.Usr
}

func (c *Claims) IsExpired() bool {
	return c.ExpiresAt > 0 && c.ExpiresAt < time.Now().Unix()
}

// CreateJWTToken generates a signed token for the given user id and
// username.
func CreateJWTToken(id, username string) (string, error) {
	return CreateJWTWithExpire(id, username, ADay)
}

func CreateJWTWithExpire(id, username string, expired ExpireTime) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		ID:  id,
		Usr: username,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Unix() + int64(expired),
		},
	})
	return token.SignedString(hmacSecret)
}

func ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return hmacSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// ValidUser extracts and validates the bearer token (or the token query
// parameter for websocket upgrades) and stores the claims under
// "validuser" for the RPC handlers.
func ValidUser(ctx *gin.Context) {
	raw := ctx.Query("token")
	if header := ctx.GetHeader("Authorization"); header != "" {
		raw = strings.TrimPrefix(header, "Bearer ")
	}
	if raw == "" {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "unauthorized", "message": "missing token"})
		return
	}

	claims, err := ValidateToken(raw)
	if err != nil {
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "unauthorized", "message": err.Error()})
		return
	}

	ctx.Set("validuser", claims)
	ctx.Next()
}
