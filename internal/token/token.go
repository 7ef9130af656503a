package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/vistrive/assetnext/internal/model"
)

// Service issues and verifies the short-lived, job-scoped capability tokens
// carried by scan agents, plus operator session tokens. Agent tokens are pure
// capabilities: the only trust they confer is "may act on this one job".
type Service struct {
	secret []byte
}

// NewService creates a token service signing with the given HS256 secret.
func NewService(secret string) *Service {
	return &Service{secret: []byte(secret)}
}

// JobClaims are the claims embedded in a discovery-job agent token.
type JobClaims struct {
	JobID    string `json:"job_id"`
	JobCode  string `json:"job_code"`
	TenantID string `json:"tenant_id"`
	SiteID   string `json:"site_id,omitempty"`
	jwt.RegisteredClaims
}

// OperatorClaims are the claims of an operator session token.
type OperatorClaims struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Status classifies a verification outcome. A boolean is not enough here: the
// caller maps each variant to a distinct HTTP response.
type Status int

const (
	StatusValid Status = iota
	StatusExpired
	StatusMismatched // token is genuine but scoped to a different job
	StatusInvalid
)

// Verification is the tagged result of verifying an agent token. Claims is
// populated only when Status is StatusValid.
type Verification struct {
	Status Status
	Claims *JobClaims
}

// IssueJobToken signs a token scoped to a single discovery job, valid for the
// job lifetime.
func (s *Service) IssueJobToken(job *model.DiscoveryJob) (string, error) {
	now := time.Now()
	claims := JobClaims{
		JobID:    job.ID,
		JobCode:  job.JobCode,
		TenantID: job.TenantID,
		SiteID:   job.SiteID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(model.JobLifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing job token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry, then requires the embedded job code to
// equal the job code from the request path. A token issued for job A presented
// against job B is Mismatched, never Valid.
func (s *Service) Verify(raw, pathJobCode string) Verification {
	var claims JobClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Verification{Status: StatusExpired}
		}
		return Verification{Status: StatusInvalid}
	}
	if !tok.Valid {
		return Verification{Status: StatusInvalid}
	}

	if claims.JobCode == "" || claims.JobCode != pathJobCode {
		return Verification{Status: StatusMismatched}
	}

	return Verification{Status: StatusValid, Claims: &claims}
}

// IssueOperatorToken signs an operator session token.
func (s *Service) IssueOperatorToken(userID, tenantID, role string, lifetime time.Duration) (string, error) {
	now := time.Now()
	claims := OperatorClaims{
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing operator token: %w", err)
	}
	return signed, nil
}

// VerifyOperator validates an operator session token.
func (s *Service) VerifyOperator(raw string) (*OperatorClaims, error) {
	var claims OperatorClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !tok.Valid || claims.TenantID == "" {
		return nil, jwt.ErrSignatureInvalid
	}
	return &claims, nil
}

// NewAPIKey generates an opaque monitor-agent API key. Keys carry no claims
// and never expire; the only gate is the agent row's status.
func NewAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return "nma_" + base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashAPIKey hashes an API key for storage.
func HashAPIKey(key string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing api key: %w", err)
	}
	return string(hash), nil
}

// CheckAPIKey compares a presented key against the stored hash.
func CheckAPIKey(hash, key string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
