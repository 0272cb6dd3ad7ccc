package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"chatline/internal/domain"
)

const identityKey = "identity"

var errNoToken = errors.New("no token supplied")

// Claims is the identity carried in a signed token. Issuance lives
// with the auth service; this side only verifies.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Parse validates signature and expiry and returns the embedded
// identity.
func (v *Verifier) Parse(tokenString string) (domain.User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.User{}, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return domain.User{}, jwt.ErrTokenInvalidClaims
	}
	return domain.User{
		ID:       domain.UserID(claims.UserID),
		Username: claims.Username,
		Avatar:   claims.Avatar,
	}, nil
}

// AuthMiddleware rejects requests without a verified identity before
// anything downstream runs. The token comes from the Authorization
// header, or from a query parameter for websocket dials (browsers
// cannot set headers there).
func AuthMiddleware(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extractToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
			return
		}
		user, err := v.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "unauthorized"})
			return
		}
		c.Set(identityKey, user)
		c.Next()
	}
}

func extractToken(c *gin.Context) (string, error) {
	if h := c.GetHeader("Authorization"); h != "" {
		if token, found := strings.CutPrefix(h, "Bearer "); found {
			return token, nil
		}
		return "", errNoToken
	}
	if token := c.Query("token"); token != "" {
		return token, nil
	}
	return "", errNoToken
}

// Identity returns the verified user set by AuthMiddleware.
func Identity(c *gin.Context) (domain.User, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return domain.User{}, false
	}
	user, ok := v.(domain.User)
	return user, ok
}
