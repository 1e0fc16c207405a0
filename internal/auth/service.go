package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultTokenTTL = 12 * time.Hour

var ErrTokenInvalid = errors.New("token invalid")

// Claims identifies the runner whose device or app holds the token.
type Claims struct {
	RunnerID string `json:"runner_id"`
	jwt.RegisteredClaims
}

// Service signs and validates runner tokens. Accounts live in a separate
// identity service; this one only trusts tokens signed with the shared secret.
type Service struct {
	secret []byte
	now    func() time.Time
}

func NewService(secret string) *Service {
	return &Service{secret: []byte(secret), now: time.Now}
}

// IssueToken signs an HS256 token for runnerID valid for ttl.
func IssueToken(secret, runnerID string, ttl time.Duration) (string, error) {
	return NewService(secret).signToken(runnerID, ttl)
}

func (s *Service) signToken(runnerID string, ttl time.Duration) (string, error) {
	if runnerID == "" {
		return "", errors.New("runner id required")
	}
	now := s.now()
	claims := Claims{
		RunnerID: runnerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   runnerID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateAccessToken returns the runner id carried by a valid token.
func (s *Service) ValidateAccessToken(token string) (string, error) {
	claims, err := s.parseToken(token)
	if err != nil {
		return "", err
	}
	return claims.RunnerID, nil
}

func (s *Service) parseToken(token string) (*Claims, error) {
	parsed, err := parseClaimsFn(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.RunnerID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

var parseClaimsFn = jwt.ParseWithClaims
