package httpapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ephemeralClaims is the HS256 JWT issued by GET /apps/voice/session and
// required as the Bearer token on POST /apps/voice/sdp. Grounded on
// internal/auth.JWTService/Claims, narrowed to the one scope this server
// needs (a short-lived SDP credential, not a user identity).
type ephemeralClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

const ephemeralScope = "voice-sdp"

// issueEphemeralToken signs a fresh voice-sdp token valid for
// s.cfg.effectiveTokenTTL().
func (s *Server) issueEphemeralToken() (string, error) {
	secret := s.cfg.effectiveTokenSecret()
	if secret == "" {
		return "", errors.New("no secret configured for ephemeral tokens")
	}
	now := time.Now()
	claims := ephemeralClaims{
		Scope: ephemeralScope,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.effectiveTokenTTL())),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// validateEphemeralToken parses and verifies tokenStr, rejecting expired
// tokens or anything not signed with HMAC by this server.
func (s *Server) validateEphemeralToken(tokenStr string) (*ephemeralClaims, error) {
	secret := s.cfg.effectiveTokenSecret()
	if secret == "" {
		return nil, errors.New("no secret configured for ephemeral tokens")
	}
	parsed, err := jwt.ParseWithClaims(tokenStr, &ephemeralClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*ephemeralClaims)
	if !ok || !parsed.Valid || claims.Scope != ephemeralScope {
		return nil, errors.New("invalid ephemeral token")
	}
	return claims, nil
}
