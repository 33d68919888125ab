package servicetoken

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenRequired    = errors.New("service token required")
	ErrUnknownKey       = errors.New("unknown token key")
	ErrIssuerNotAllowed = errors.New("issuer not allowed")
)

// Caller identifies who signed a verified token.
type Caller struct {
	Issuer  string
	Subject string
	TokenID string
}

type callerKey struct{}

// CallerFromContext returns the caller stored by Require.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}

// Verifier accepts tokens for one audience from a fixed set of issuers.
type Verifier struct {
	keys    keySet
	issuers map[string]struct{}
	parser  *jwt.Parser
}

type VerifierOptions struct {
	// PublicKeyPath is registered under DefaultKeyID.
	PublicKeyPath      string
	VerifyPublicKeyMap map[string]string
	DefaultKeyID       string
	Audience           string
	AllowedIssuers     []string
	Leeway             time.Duration
}

func NewVerifierWithOptions(opts VerifierOptions) (*Verifier, error) {
	audience := strings.TrimSpace(opts.Audience)
	if audience == "" {
		return nil, errors.New("service token audience is required")
	}
	issuers := make(map[string]struct{}, len(opts.AllowedIssuers))
	for _, iss := range opts.AllowedIssuers {
		if iss = strings.TrimSpace(iss); iss != "" {
			issuers[iss] = struct{}{}
		}
	}
	if len(issuers) == 0 {
		return nil, errors.New("at least one allowed issuer is required")
	}

	keys := keySet{}
	defaultKid := strings.TrimSpace(opts.DefaultKeyID)
	if defaultKid == "" {
		defaultKid = DefaultKeyID
	}
	if err := keys.load(defaultKid, opts.PublicKeyPath); err != nil {
		return nil, err
	}
	for kid, path := range opts.VerifyPublicKeyMap {
		if err := keys.load(kid, path); err != nil {
			return nil, err
		}
	}
	if len(keys) == 0 {
		return nil, errors.New("service token verifier requires an rsa public key")
	}

	leeway := opts.Leeway
	if leeway <= 0 {
		leeway = DefaultLeeway
	}
	return &Verifier{
		keys:    keys,
		issuers: issuers,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithAudience(audience),
			jwt.WithIssuedAt(),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(leeway),
		),
	}, nil
}

func (v *Verifier) keyFor(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if strings.TrimSpace(kid) == "" {
		return nil, fmt.Errorf("%w: kid header missing", ErrUnknownKey)
	}
	pub, ok := v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, kid)
	}
	return pub, nil
}

// Verify checks signature, time claims, audience and issuer, and requires a
// subject and a jti.
func (v *Verifier) Verify(token string) (Caller, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Caller{}, ErrTokenRequired
	}
	var claims jwt.RegisteredClaims
	if _, err := v.parser.ParseWithClaims(token, &claims, v.keyFor); err != nil {
		return Caller{}, err
	}
	if _, ok := v.issuers[claims.Issuer]; !ok {
		return Caller{}, fmt.Errorf("%w: %q", ErrIssuerNotAllowed, claims.Issuer)
	}
	if claims.ID == "" || strings.TrimSpace(claims.Subject) == "" {
		return Caller{}, errors.New("token must carry sub and jti")
	}
	return Caller{Issuer: claims.Issuer, Subject: claims.Subject, TokenID: claims.ID}, nil
}

// Require answers 401 unless the request carries a valid token. The caller is
// available to next through CallerFromContext.
func (v *Verifier) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			writeUnauthorized(w, ErrTokenRequired.Error())
			return
		}
		caller, err := v.Verify(token)
		if err != nil {
			writeUnauthorized(w, "invalid service token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(r.Header.Get("Authorization")), "Bearer ")
	if !ok {
		return "", false
	}
	token := strings.TrimSpace(rest)
	return token, token != ""
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
