package realtime

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identity 经过鉴权的用户身份
type Identity struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// Claims 握手令牌声明，Subject 为用户标识
type Claims struct {
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

// authenticator 握手鉴权器
type authenticator struct {
	secret []byte
	issuer string
}

func newAuthenticator(config AuthConfig) *authenticator {
	return &authenticator{
		secret: []byte(config.Secret),
		issuer: config.Issuer,
	}
}

// Authenticate 校验握手令牌并提取身份
func (a *authenticator) Authenticate(r *http.Request) (*Identity, error) {
	tokenString := tokenFromRequest(r)
	if tokenString == "" {
		return nil, ErrAuthRequired
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if a.issuer != "" && claims.Issuer != a.issuer {
		return nil, ErrInvalidToken
	}

	userID := strings.TrimSpace(claims.Subject)
	if userID == "" {
		return nil, ErrInvalidToken
	}

	identity := &Identity{
		UserID:      userID,
		Username:    strings.TrimSpace(claims.Username),
		DisplayName: strings.TrimSpace(claims.DisplayName),
		Avatar:      strings.TrimSpace(claims.Avatar),
	}
	if identity.Username == "" {
		identity.Username = userID
	}
	return identity, nil
}

// tokenFromRequest 从查询参数或 Authorization 头提取令牌
func tokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}
