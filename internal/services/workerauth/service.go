package workerauth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ternarybob/arbor"

	"github.com/manifeed/manifeed/internal/common"
	"github.com/manifeed/manifeed/internal/models"
)

const workerScope = "worker"

// Service issues and verifies the short-lived HS256 tokens workers present
// on the internal API
type Service struct {
	credentials map[string]string
	secret      []byte
	ttl         time.Duration
	logger      arbor.ILogger

	// now is swappable for tests
	now func() time.Time
}

type workerClaims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope"`
}

// NewService creates a token service from the worker auth configuration
func NewService(config *common.Config, logger arbor.ILogger) *Service {
	return &Service{
		credentials: config.WorkerCredentials(),
		secret:      []byte(config.Worker.TokenSecret),
		ttl:         time.Duration(config.WorkerTokenTTLSeconds()) * time.Second,
		logger:      logger,
		now:         time.Now,
	}
}

// Issue validates the worker's credentials and returns a signed token with
// its expiry. Unknown workers and bad secrets both yield
// models.ErrInvalidCredentials.
func (s *Service) Issue(workerID, workerSecret string) (string, time.Time, error) {
	expected, ok := s.credentials[workerID]
	if !ok || expected != workerSecret {
		return "", time.Time{}, models.ErrInvalidCredentials
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)
	claims := workerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   workerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Scope: workerScope,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign worker token: %w", err)
	}

	s.logger.Debug().Str("worker_id", workerID).Str("expires_at", expiresAt.Format(time.RFC3339)).Msg("Issued worker token")
	return token, expiresAt, nil
}

// Verify parses a worker token and returns its worker id. Expired tokens,
// wrong signing methods and non-worker scopes are all rejected.
func (s *Service) Verify(tokenString string) (string, error) {
	var claims workerClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse worker token: %w", err)
	}
	if !token.Valid || claims.Scope != workerScope || claims.Subject == "" {
		return "", models.ErrInvalidCredentials
	}
	return claims.Subject, nil
}
