package api

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"scrum-board/domain"
)

const (
	defaultJWKSCacheTTL = 15 * time.Minute
	envAuth0TestMode    = "AUTH0_TEST_MODE"
	envTestJWTSecret    = "TEST_JWT_SECRET"
	envJWKSCacheTTL     = "JWKS_CACHE_TTL"
)

// Auth validates bearer tokens and turns their claims into an actor.
type Auth struct {
	JWKS       *keyfunc.JWKS
	Audience   string
	Issuer     string
	TestMode   bool
	TestSecret []byte

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth creates a new Auth instance. With AUTH0_TEST_MODE=1 tokens are
// HS256-signed with TEST_JWT_SECRET instead of verified against the JWKS.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string) *Auth {
	a := &Auth{JWKS: jwks, Audience: audience, Issuer: issuer}
	a.keyCacheTTL = envDur(envJWKSCacheTTL, defaultJWKSCacheTTL)

	if os.Getenv(envAuth0TestMode) == "1" {
		secret := os.Getenv(envTestJWTSecret)
		if secret == "" {
			panic("TEST_JWT_SECRET must be set when AUTH0_TEST_MODE=1")
		}
		a.TestMode = true
		a.TestSecret = []byte(secret)
	}

	if a.TestMode {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	} else {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	}
	return a
}

// ActorFromAuthHeader resolves the caller from the Authorization header.
func (a *Auth) ActorFromAuthHeader(h string) (domain.Actor, error) {
	if h == "" {
		return domain.Actor{}, errMissingAuthorization
	}
	token, err := bearerTokenFromString(h)
	if err != nil {
		return domain.Actor{}, err
	}
	return a.ActorFromBearer(token)
}

// ActorFromBearer verifies a raw token and reads sub, name and email.
func (a *Auth) ActorFromBearer(token string) (domain.Actor, error) {
	if token == "" {
		return domain.Actor{}, errBadAuthorization
	}

	var keyFunc jwt.Keyfunc
	if a.TestMode {
		keyFunc = func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.TestSecret, nil
		}
	} else {
		keyFunc = a.keyForToken
	}
	parsed, err := a.parser.Parse(token, keyFunc)
	if err != nil {
		return domain.Actor{}, err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Actor{}, errors.New("invalid claims")
	}

	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return domain.Actor{}, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return domain.Actor{}, errors.New("token not valid yet")
	}
	if a.Audience != "" && !claims.VerifyAudience(a.Audience, false) {
		return domain.Actor{}, errors.New("invalid audience")
	}
	if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, false) {
		return domain.Actor{}, errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return domain.Actor{}, errors.New("missing sub")
	}
	name, _ := claims["name"].(string)
	email, _ := claims["email"].(string)
	return domain.Actor{ID: sub, Name: name, Email: email}, nil
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if a.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && a.keyCacheTTL > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && a.keyCacheTTL > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(a.keyCacheTTL)})
	}
	return key, nil
}
