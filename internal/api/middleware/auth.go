package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/guided-traffic/file-encryptor/internal/api/response"
	"github.com/guided-traffic/file-encryptor/internal/config"
	"github.com/guided-traffic/file-encryptor/internal/fault"
)

// Claims carried by an API token
type Claims struct {
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for subject. A zero ttl issues a token
// without expiry.
func IssueToken(secret []byte, issuer, subject string, ttl time.Duration) (string, *Claims, error) {
	if len(secret) == 0 {
		return "", nil, fmt.Errorf("signing secret is required")
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, claims, nil
}

// Authenticator checks bearer tokens on API routes
type Authenticator struct {
	enabled bool
	secret  []byte
	issuer  string
	writer  *response.Writer
	logger  *logrus.Entry
}

// NewAuthenticator creates the token check described by cfg
func NewAuthenticator(cfg config.AuthConfig, logger *logrus.Entry) *Authenticator {
	return &Authenticator{
		enabled: cfg.Enabled,
		secret:  []byte(cfg.Secret),
		issuer:  cfg.Issuer,
		writer:  response.NewWriter(logger),
		logger:  logger,
	}
}

// Verify parses and validates a token string
func (a *Authenticator) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
	)
	if err != nil {
		return nil, fault.Wrap(fault.Unauthorized, "authenticate", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fault.New(fault.Unauthorized, "authenticate", "invalid token claims")
	}
	return claims, nil
}

// Middleware returns the HTTP middleware function. It passes everything
// through when auth is disabled.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	if !a.enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(tokenString) == "" {
			a.writer.Error(w, r, fault.New(fault.Unauthorized, "authenticate", "missing bearer token"))
			return
		}

		claims, err := a.Verify(strings.TrimSpace(tokenString))
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"path":        r.URL.Path,
				"remote_addr": r.RemoteAddr,
			}).Warn("Rejected API token")
			a.writer.Error(w, r, err)
			return
		}

		a.logger.WithFields(logrus.Fields{
			"subject":  claims.Subject,
			"token_id": claims.ID,
		}).Debug("API token accepted")

		next.ServeHTTP(w, r)
	})
}
