package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultAccessTokenExpiry = time.Hour

// JWTConfig holds JWT signing and expiry configuration.
type JWTConfig struct {
	SigningKey        string
	AccessTokenExpiry time.Duration
	Issuer            string
	Audience          string
}

// AccessTokenClaims identifies an admin user. The subject is the user id.
type AccessTokenClaims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// JWTService handles JWT token generation and validation.
type JWTService struct {
	config JWTConfig
	now    func() time.Time
}

// NewJWTService creates a new JWTService with the given configuration.
func NewJWTService(config JWTConfig) *JWTService {
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = defaultAccessTokenExpiry
	}
	return &JWTService{config: config, now: time.Now}
}

// Predefined errors for JWT operations.
var (
	ErrTokenExpired   = errors.New("token has expired")
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrSigningMethod  = errors.New("unexpected signing method")
)

// GenerateAccessToken creates a signed HS256 access token for userID.
func (s *JWTService) GenerateAccessToken(userID uuid.UUID, username string) (string, error) {
	now := s.now()
	claims := AccessTokenClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.AccessTokenExpiry)),
		},
	}
	if s.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{s.config.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.SigningKey))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ValidateAccessToken parses and validates a JWT access token string.
// Returns the claims if valid, or an error if the token is expired, invalid, or malformed.
func (s *JWTService) ValidateAccessToken(tokenString string) (*AccessTokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	if s.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(s.config.Audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrSigningMethod
		}
		return []byte(s.config.SigningKey), nil
	}, opts...)
	if err != nil {
		return nil, classifyJWTError(err)
	}

	claims, ok := token.Claims.(*AccessTokenClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// UserID returns the subject as a user id.
func (c *AccessTokenClaims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: subject is not a user id", ErrTokenInvalid)
	}
	return id, nil
}

// classifyJWTError maps jwt library errors to domain-specific errors.
func classifyJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	if errors.Is(err, jwt.ErrTokenMalformed) {
		return ErrTokenMalformed
	}
	if errors.Is(err, jwt.ErrSignatureInvalid) {
		return ErrTokenInvalid
	}
	if errors.Is(err, ErrSigningMethod) || errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return ErrSigningMethod
	}
	return fmt.Errorf("validate token: %w", err)
}
