// Package identity resolves client-supplied JWTs into users. The realtime
// core consumes it through the Resolver interface; the concrete resolver
// verifies HS256 tokens and memoizes results in a bounded LRU so repeated
// authorize intents with the same token skip signature verification.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/teamkard/teamkard/pkg/domain"
)

// ErrInvalidToken covers every verification failure: bad signature,
// malformed token, expired, or missing subject.
var ErrInvalidToken = errors.New("identity: invalid token")

// Resolver turns a raw token into a user.
type Resolver interface {
	Resolve(token string) (domain.User, error)
}

// Claims is the token payload the backend issues and accepts.
type Claims struct {
	Login string `json:"login,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type cacheEntry struct {
	user      domain.User
	expiresAt time.Time
}

// JWTResolver verifies HS256 tokens against a shared secret.
type JWTResolver struct {
	secret []byte
	cache  *lru.Cache[string, cacheEntry]
}

// NewJWTResolver creates a resolver with a bounded token cache.
// cacheSize <= 0 disables caching.
func NewJWTResolver(secret string, cacheSize int) (*JWTResolver, error) {
	if secret == "" {
		return nil, errors.New("identity: empty JWT secret")
	}

	r := &JWTResolver{secret: []byte(secret)}
	if cacheSize > 0 {
		cache, err := lru.New[string, cacheEntry](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("identity cache: %w", err)
		}
		r.cache = cache
	}
	return r, nil
}

// Resolve verifies the token and returns the user it identifies.
func (r *JWTResolver) Resolve(token string) (domain.User, error) {
	if r.cache != nil {
		if entry, ok := r.cache.Get(token); ok {
			if time.Now().Before(entry.expiresAt) {
				return entry.user, nil
			}
			r.cache.Remove(token)
		}
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return r.secret, nil
	})
	if err != nil || !parsed.Valid {
		return domain.User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return domain.User{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	user := domain.User{
		ID:    domain.UserID(claims.Subject),
		Login: claims.Login,
		Type:  domain.ParseUserType(claims.Role),
	}

	if r.cache != nil && claims.ExpiresAt != nil {
		r.cache.Add(token, cacheEntry{user: user, expiresAt: claims.ExpiresAt.Time})
	}
	return user, nil
}

// Issue signs a token for a user. Tests and the dev tooling use it; the
// production issuer lives in the account service.
func (r *JWTResolver) Issue(user domain.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Login: user.Login,
		Role:  string(user.Type),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}
