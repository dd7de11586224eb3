package middleware

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	apierrors "github.com/feral-file/ff-custody-ledger/internal/api/shared/errors"
	"github.com/feral-file/ff-custody-ledger/internal/domain"
	"github.com/feral-file/ff-custody-ledger/internal/logger"
	"github.com/feral-file/ff-custody-ledger/internal/metrics"
)

const (
	CALLER_KEY     = "caller"
	JWT_CLAIMS_KEY = "jwt_claims"
)

// Authenticator verifies bearer tokens and resolves the caller identity
type Authenticator struct {
	publicKey *rsa.PublicKey
}

// NewAuthenticator parses the RSA public key (PEM, PKIX or PKCS1) used to verify tokens
func NewAuthenticator(publicKeyPEM string) (*Authenticator, error) {
	if publicKeyPEM == "" {
		return nil, errors.New("JWT public key not configured")
	}

	publicKey, err := parseRSAPublicKey(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSA public key: %w", err)
	}

	return &Authenticator{publicKey: publicKey}, nil
}

// Authenticate validates the Authorization header and returns the caller named by the token subject
func (a *Authenticator) Authenticate(authHeader string) (common.Address, *jwt.RegisteredClaims, error) {
	if authHeader == "" {
		return common.Address{}, nil, errors.New("missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return common.Address{}, nil, errors.New("invalid Authorization header format")
	}

	claims, err := a.validateJWT(strings.TrimSpace(parts[1]))
	if err != nil {
		return common.Address{}, nil, err
	}

	if claims.Subject == "" {
		return common.Address{}, nil, errors.New("token has no subject")
	}

	caller, err := domain.ParseIdentity(claims.Subject)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("invalid subject: %w", err)
	}
	if domain.IsZeroAddress(caller) {
		return common.Address{}, nil, errors.New("invalid subject: null identity")
	}

	return caller, claims, nil
}

// Auth returns a gin middleware that requires a valid bearer token and stores the caller in the context
func Auth(a *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, claims, err := a.Authenticate(c.GetHeader("Authorization"))
		if err != nil {
			logger.WarnCtx(c.Request.Context(), "Authentication failed",
				zap.Error(err),
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
			)
			metrics.RecordAuthFailure(authFailureReason(c.GetHeader("Authorization")))
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierrors.ErrorResponse{
				Error: apierrors.NewUnauthenticatedError("Authentication failed", err.Error()),
			})
			return
		}

		c.Set(CALLER_KEY, caller)
		c.Set(JWT_CLAIMS_KEY, claims)
		c.Request = c.Request.WithContext(logger.WithCaller(c.Request.Context(), caller.Hex()))
		logger.DebugCtx(c.Request.Context(), "JWT authentication successful",
			zap.String("path", c.Request.URL.Path),
		)

		c.Next()
	}
}

// Caller returns the authenticated caller stored by Auth
func Caller(c *gin.Context) (common.Address, bool) {
	v, ok := c.Get(CALLER_KEY)
	if !ok {
		return common.Address{}, false
	}
	caller, ok := v.(common.Address)
	return caller, ok
}

func authFailureReason(authHeader string) string {
	if authHeader == "" {
		return "missing"
	}
	return "invalid"
}

// validateJWT validates a JWT token with RSA signature and returns claims.
// Expiry and not-before are enforced by the parser when present.
func (a *Authenticator) validateJWT(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// parseRSAPublicKey parses an RSA public key from PEM format
func parseRSAPublicKey(publicKeyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, errors.New("failed to parse PEM block containing public key")
	}

	// Try parsing as PKIX (most common format)
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		// Try parsing as PKCS1 format
		return x509.ParsePKCS1PublicKey(block.Bytes)
	}

	rsaKey, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not an RSA key")
	}

	return rsaKey, nil
}
