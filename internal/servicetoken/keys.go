// Package servicetoken signs and verifies the short-lived RS256 tokens that
// guard the pipeline trigger endpoints. planctl and the database webhook
// relay sign; the pipeline service verifies.
package servicetoken

import (
	"crypto/rsa"
	"fmt"
	"os"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultTokenTTL is how long a signed token stays valid.
	DefaultTokenTTL = 60 * time.Second
	// DefaultLeeway absorbs clock skew between signer and verifier.
	DefaultLeeway = 15 * time.Second
	// DefaultKeyID names the key when none is configured.
	DefaultKeyID = "internal-active"

	// PipelineAudience is the audience the pipeline triggers accept.
	PipelineAudience = "hotelplan-pipeline"
	// WebhookIssuer signs row-change webhooks relayed from the database.
	WebhookIssuer = "hotelplan-webhook"
	// OperatorIssuer signs manual triggers from planctl.
	OperatorIssuer = "planctl"
)

func readPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPrivateKeyFromPEM(data)
}

// readPublicKey accepts a PKIX public key or a certificate.
func readPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPublicKeyFromPEM(data)
}

// keySet maps key ids to verification keys.
type keySet map[string]*rsa.PublicKey

func (ks keySet) load(kid, path string) error {
	kid, path = strings.TrimSpace(kid), strings.TrimSpace(path)
	if kid == "" || path == "" {
		return nil
	}
	pub, err := readPublicKey(path)
	if err != nil {
		return fmt.Errorf("load verify key %q: %w", kid, err)
	}
	ks[kid] = pub
	return nil
}

// ParseVerifyPublicKeys parses "kid=path,kid2=path2". Rotations list the old
// and new key side by side until every signer has switched.
func ParseVerifyPublicKeys(raw string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kid, path, ok := strings.Cut(pair, "=")
		kid, path = strings.TrimSpace(kid), strings.TrimSpace(path)
		if !ok || kid == "" || path == "" {
			return nil, fmt.Errorf("invalid verify key entry %q", pair)
		}
		out[kid] = path
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
