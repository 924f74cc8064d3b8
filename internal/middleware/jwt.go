package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/arturoeanton/repo-sync/internal/domain"
	"github.com/arturoeanton/repo-sync/internal/port"
)

const (
	userLocalsKey       = "user"
	purposeRepoConnect  = "github_connect"
	defaultStateTimeout = 10 * time.Minute
)

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret    string
	Issuer    string
	ExpiresIn time.Duration
}

// Claims is the JWT payload. userId duplicates the subject for clients
// that read it directly.
type Claims struct {
	UserID  string `json:"userId"`
	Purpose string `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies HS256 tokens. It implements port.TokenIssuer.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

var _ port.TokenIssuer = (*TokenService)(nil)

// NewTokenService creates a token service from cfg.
func NewTokenService(cfg JWTConfig) *TokenService {
	ttl := cfg.ExpiresIn
	if ttl <= 0 {
		ttl = 168 * time.Hour
	}
	return &TokenService{secret: []byte(cfg.Secret), issuer: cfg.Issuer, ttl: ttl}
}

// Issue signs a bearer token for userID.
func (s *TokenService) Issue(userID string) (string, error) {
	return s.sign(userID, "", s.ttl)
}

// Verify validates a bearer token and returns its user ID.
func (s *TokenService) Verify(token string) (string, error) {
	c, err := s.parse(token)
	if err != nil {
		return "", err
	}
	if c.Purpose != "" {
		return "", fmt.Errorf("%w: not a bearer token", port.ErrTokenInvalid)
	}
	return c.UserID, nil
}

// IssueState signs a short-lived OAuth state that binds userID to a
// repository-connect flow.
func (s *TokenService) IssueState(userID string) (string, error) {
	return s.sign(userID, purposeRepoConnect, defaultStateTimeout)
}

// VerifyState validates an OAuth state and returns the bound user ID.
func (s *TokenService) VerifyState(state string) (string, error) {
	c, err := s.parse(state)
	if err != nil {
		return "", err
	}
	if c.Purpose != purposeRepoConnect {
		return "", fmt.Errorf("%w: not a connect state", port.ErrTokenInvalid)
	}
	return c.UserID, nil
}

func (s *TokenService) sign(userID, purpose string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := Claims{
		UserID:  userID,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign: %w", err)
	}
	return signed, nil
}

func (s *TokenService) parse(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	var c Claims
	_, err := jwt.ParseWithClaims(tokenStr, &c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, port.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", port.ErrTokenInvalid, err)
	}
	if c.UserID == "" {
		c.UserID = c.Subject
	}
	if c.UserID == "" {
		return nil, fmt.Errorf("%w: no subject", port.ErrTokenInvalid)
	}
	return &c, nil
}

// BearerToken extracts the token from "Authorization: Bearer ...", if any.
func BearerToken(c fiber.Ctx) string {
	parts := strings.SplitN(c.Get("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// JWTMiddleware creates a Fiber middleware that validates JWT tokens
// and injects a UserContext into the request context.
func JWTMiddleware(tokens port.TokenIssuer) fiber.Handler {
	return func(c fiber.Ctx) error {
		token := BearerToken(c)

		// Fallback: ?token= query param (for SSE/EventSource which can't set headers)
		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "No token, authorization denied",
			})
		}

		userID, err := tokens.Verify(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Token is not valid",
			})
		}

		c.Locals(userLocalsKey, &domain.UserContext{UserID: userID})
		return c.Next()
	}
}

// GetUserContext extracts the UserContext from Fiber locals.
func GetUserContext(c fiber.Ctx) *domain.UserContext {
	u, ok := c.Locals(userLocalsKey).(*domain.UserContext)
	if !ok {
		return nil
	}
	return u
}
