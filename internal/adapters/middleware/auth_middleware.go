package middleware

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Roles carried in the "role" claim
const (
	RoleOwner  = "OWNER"
	RoleViewer = "VIEWER"
)

// cacheEntry stores cached JWT claims keyed by JTI (JWT ID)
type cacheEntry struct {
	claims jwt.MapClaims
	exp    int64
}

// AuthMiddleware handles JWT validation and RBAC enforcement.
// Tokens are RS256 signed by the identity provider and verified with its
// public key. Verified claims are cached by JTI until they expire.
type AuthMiddleware struct {
	publicKey *rsa.PublicKey
	disabled  bool
	cache     sync.Map
	// Background janitor for cache cleanup
	janitorStop chan bool
	stopOnce    sync.Once
	logger      *zap.Logger
}

const CacheCleanupInterval = 10 * time.Minute

// LocalOwnerID is the identity used for every request when auth is disabled
const LocalOwnerID = "local-owner"

// NewAuthMiddleware creates a new JWT authentication middleware
func NewAuthMiddleware(publicKey *rsa.PublicKey, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &AuthMiddleware{
		publicKey:   publicKey,
		janitorStop: make(chan bool),
		logger:      logger,
	}

	go m.startJanitor(CacheCleanupInterval)

	return m
}

// NewDisabledAuthMiddleware returns a middleware that treats every request
// as coming from the diary owner. Meant for single-user local deployments.
func NewDisabledAuthMiddleware(logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Warn("authentication disabled, all requests run as the diary owner")
	return &AuthMiddleware{
		disabled:    true,
		janitorStop: make(chan bool),
		logger:      logger,
	}
}

// Context keys for storing user information
type contextKey string

const (
	UserIDKey contextKey = "userID"
	RoleKey   contextKey = "role"
	TokenKey  contextKey = "token"
)

// GetClaimsFromCacheOrParse extracts claims from cache or parses token.
// Returns claims, JTI, and error.
func (m *AuthMiddleware) GetClaimsFromCacheOrParse(tokenString string) (jwt.MapClaims, string, error) {
	// Peek at the JTI without verifying the signature yet
	parser := new(jwt.Parser)
	unverifiedToken, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, "", err
	}

	claims, ok := unverifiedToken.Claims.(jwt.MapClaims)
	if !ok {
		return nil, "", errors.New("invalid token claims")
	}

	jti, _ := claims["jti"].(string)
	if jti == "" {
		role, _ := claims["role"].(string)
		userID, _ := claims["sub"].(string)
		jti = fmt.Sprintf("%s-%s-%s", tokenString[:min(20, len(tokenString))], role, userID[:min(8, len(userID))])
		m.logger.Debug("token missing jti, using fallback cache key", zap.String("role", role), zap.String("user_id", userID))
	}

	var exp int64
	switch v := claims["exp"].(type) {
	case float64:
		exp = int64(v)
	case int64:
		exp = v
	default:
		return nil, "", errors.New("missing expiration claim")
	}

	if time.Now().Unix() > exp {
		return nil, "", errors.New("token expired")
	}

	if entry, ok := m.cache.Load(jti); ok {
		cached := entry.(cacheEntry)
		if time.Now().Unix() < cached.exp {
			return cached.claims, jti, nil
		}
		m.cache.Delete(jti)
	}

	// Full RSA validation on cache miss
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.publicKey, nil
	})
	if err != nil {
		return nil, "", err
	}
	if !token.Valid {
		return nil, "", jwt.ErrSignatureInvalid
	}

	verifiedClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, "", errors.New("invalid token claims")
	}

	m.cache.Store(jti, cacheEntry{claims: verifiedClaims, exp: exp})

	return verifiedClaims, jti, nil
}

// Disabled reports whether every request is treated as the owner
func (m *AuthMiddleware) Disabled() bool {
	return m.disabled
}

// Authenticate validates a JWT and returns its subject and role
func (m *AuthMiddleware) Authenticate(tokenString string) (userID string, role string, err error) {
	claims, _, err := m.GetClaimsFromCacheOrParse(tokenString)
	if err != nil {
		return "", "", err
	}

	userIDClaim, ok := claims["sub"].(string)
	if !ok || userIDClaim == "" {
		return "", "", errors.New("missing or invalid user ID claim")
	}

	roleClaim, ok := claims["role"].(string)
	if !ok || roleClaim == "" {
		return "", "", errors.New("missing or invalid role claim")
	}

	return userIDClaim, roleClaim, nil
}

// RequireAuth is middleware that validates JWT token from Authorization header.
// Adds userID and role to request context.
func (m *AuthMiddleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			ctx := context.WithValue(r.Context(), UserIDKey, LocalOwnerID)
			ctx = context.WithValue(ctx, RoleKey, RoleOwner)
			next(w, r.WithContext(ctx))
			return
		}

		start := time.Now()

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.logger.Debug("missing authorization header", zap.String("path", r.URL.Path))
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
			return
		}

		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || strings.TrimSpace(tokenString) == "" {
			m.logger.Debug("invalid authorization header format", zap.String("path", r.URL.Path))
			http.Error(w, "invalid authorization header", http.StatusUnauthorized)
			return
		}
		tokenString = strings.TrimSpace(tokenString)

		userID, userRole, err := m.Authenticate(tokenString)
		if err != nil {
			m.logger.Info("token validation failed", zap.Error(err))
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}

		m.logger.Debug("token validated",
			zap.String("user_id", userID),
			zap.String("role", userRole),
			zap.Duration("processing_time", time.Since(start)),
		)

		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		ctx = context.WithValue(ctx, RoleKey, userRole)
		ctx = context.WithValue(ctx, TokenKey, tokenString)

		next(w, r.WithContext(ctx))
	}
}

// RequireRole only allows requests whose role matches requiredRole
func (m *AuthMiddleware) RequireRole(requiredRole string, next http.HandlerFunc) http.HandlerFunc {
	return m.RequireAnyRole([]string{requiredRole}, next)
}

// RequireAnyRole allows requests whose role is one of allowedRoles
func (m *AuthMiddleware) RequireAnyRole(allowedRoles []string, next http.HandlerFunc) http.HandlerFunc {
	return m.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		role, ok := GetRole(r.Context())
		if !ok {
			m.logger.Error("missing role in context")
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}

		if !slices.Contains(allowedRoles, role) {
			m.logger.Info("role mismatch",
				zap.Strings("allowed_roles", allowedRoles),
				zap.String("role", role),
			)
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		next(w, r)
	})
}

// startJanitor periodically cleans up expired cache entries
func (m *AuthMiddleware) startJanitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.purgeExpired(time.Now())
		case <-m.janitorStop:
			return
		}
	}
}

func (m *AuthMiddleware) purgeExpired(now time.Time) int {
	deleted := 0
	m.cache.Range(func(key, value interface{}) bool {
		if entry, ok := value.(cacheEntry); ok && now.Unix() >= entry.exp {
			m.cache.Delete(key)
			deleted++
		}
		return true
	})
	if deleted > 0 {
		m.logger.Debug("token cache janitor purged expired entries", zap.Int("deleted", deleted))
	}
	return deleted
}

// Stop stops the background janitor (for graceful shutdown)
func (m *AuthMiddleware) Stop() {
	m.stopOnce.Do(func() { close(m.janitorStop) })
}

// GetUserID extracts user ID from request context
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

// GetRole extracts role from request context
func GetRole(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(RoleKey).(string)
	return role, ok
}

// GetToken extracts token string from request context
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}

// IsOwner checks if the user in context owns the diary
func IsOwner(ctx context.Context) bool {
	role, ok := GetRole(ctx)
	return ok && role == RoleOwner
}
