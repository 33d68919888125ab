// Package usertoken verifies planner user access tokens against the identity
// provider's JWKS endpoint.
package usertoken

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultIssuer      = "hotelplan-auth"
	defaultAudience    = "hotelplan-planner"
	defaultLeeway      = 30 * time.Second
	defaultKeysTTL     = 5 * time.Minute
	defaultRefreshGap  = 10 * time.Second
	defaultHTTPTimeout = 5 * time.Second
)

var ErrBearerRequired = errors.New("bearer token required")

// Config configures user access-token verification.
type Config struct {
	JWKSURL  string
	Issuer   string
	Audience string
	Leeway   time.Duration
	// MinRefreshInterval bounds how often an unknown kid may trigger a JWKS
	// fetch.
	MinRefreshInterval time.Duration
	HTTPClient         *http.Client
}

// Verifier validates RS256 user tokens and extracts the subject.
type Verifier struct {
	keys   *keyCache
	parser *jwt.Parser
}

// NewVerifier fetches the JWKS once so a misconfigured issuer fails at
// startup.
func NewVerifier(cfg Config) (*Verifier, error) {
	url := strings.TrimSpace(cfg.JWKSURL)
	if url == "" {
		return nil, errors.New("token verifier requires jwksURL")
	}
	issuer := orDefault(cfg.Issuer, defaultIssuer)
	audience := orDefault(cfg.Audience, defaultAudience)
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	gap := cfg.MinRefreshInterval
	if gap <= 0 {
		gap = defaultRefreshGap
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}

	v := &Verifier{
		keys: &keyCache{
			url:    url,
			client: client,
			ttl:    defaultKeysTTL,
			minGap: gap,
			now:    func() time.Time { return time.Now().UTC() },
		},
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(audience),
			jwt.WithIssuedAt(),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(leeway),
		),
	}
	if err := v.keys.refresh(context.Background()); err != nil {
		return nil, err
	}
	return v, nil
}

// Authenticate verifies the request's bearer token and returns the user id.
func (v *Verifier) Authenticate(r *http.Request) (string, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(r.Header.Get("Authorization")), "Bearer ")
	if !ok || strings.TrimSpace(rest) == "" {
		return "", ErrBearerRequired
	}
	return v.Subject(r.Context(), strings.TrimSpace(rest))
}

// Subject validates token and returns its sub claim.
func (v *Verifier) Subject(ctx context.Context, token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := v.parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid = strings.TrimSpace(kid); kid == "" {
			return nil, errUnknownKey
		}
		return v.keys.get(ctx, kid)
	})
	if err != nil {
		return "", err
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", errors.New("token subject missing")
	}
	return sub, nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
