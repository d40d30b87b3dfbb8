// Package session resolves the viewer identity attached to storefront
// requests. Browsing is public, so token problems never reject a request:
// a missing, malformed, or expired token simply downgrades the viewer to
// anonymous and the catalog renders without privileged links.
package session

import (
	"context"
	"crypto"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/johnhkchen/minecraft-marketplace-sub001/pkg/market"
)

type contextKey string

const userContextKey contextKey = "marketplace.user"

// Claims is the session token payload. caps carries capability tokens and
// owned carries the ids of items listed by the subject's shop.
type Claims struct {
	Sub   string   `json:"sub"`
	Caps  []string `json:"caps"`
	Owned []string `json:"owned"`
	Iss   string   `json:"iss,omitempty"`
	Aud   any      `json:"aud,omitempty"`
	Exp   int64    `json:"exp"`
	Nbf   int64    `json:"nbf,omitempty"`
	Iat   int64    `json:"iat,omitempty"`
}

// UserContext converts verified claims into the viewer identity used by
// link generation. Unknown capability strings are dropped.
func (c Claims) UserContext() market.UserContext {
	return market.UserContext{
		Authenticated: true,
		Username:      c.Sub,
		Capabilities:  market.ParseCapabilities(c.Caps),
		OwnedItemIDs:  append([]string(nil), c.Owned...),
	}
}

type VerifierConfig struct {
	JWKSURL  string
	Issuer   string
	Audience string
	Timeout  time.Duration
}

type VerifierOption func(*VerifierConfig)

func WithJWKS(url string) VerifierOption {
	return func(cfg *VerifierConfig) {
		cfg.JWKSURL = strings.TrimSpace(url)
	}
}

func WithIssuer(issuer string) VerifierOption {
	return func(cfg *VerifierConfig) {
		cfg.Issuer = strings.TrimSpace(issuer)
	}
}

func WithAudience(audience string) VerifierOption {
	return func(cfg *VerifierConfig) {
		cfg.Audience = strings.TrimSpace(audience)
	}
}

func WithTimeout(timeout time.Duration) VerifierOption {
	return func(cfg *VerifierConfig) {
		cfg.Timeout = timeout
	}
}

// Verifier checks session tokens in one of three modes: "off" treats every
// viewer as anonymous, "hs256" verifies against a shared secret, and
// "rs256" verifies against a JWKS endpoint.
type Verifier struct {
	mode   string
	secret string
	cfg    VerifierConfig
	jwks   *jwksCache
}

func NewVerifier(mode, secret string, options ...VerifierOption) *Verifier {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "off"
	}
	cfg := VerifierConfig{Timeout: 5 * time.Second}
	for _, opt := range options {
		opt(&cfg)
	}
	v := &Verifier{mode: mode, secret: secret, cfg: cfg}
	if mode == "rs256" {
		v.jwks = newJWKSCache(cfg.JWKSURL, cfg.Timeout)
	}
	return v
}

// Verify parses and checks token as of now, returning its claims.
func (v *Verifier) Verify(token string, now time.Time) (Claims, error) {
	switch v.mode {
	case "off":
		return Claims{}, errors.New("session verification is off")
	case "hs256":
		return VerifyHS256Token(token, v.secret, now, v.cfg.Issuer, v.cfg.Audience)
	case "rs256":
		return VerifyRS256Token(token, now, v.jwks, v.cfg.Issuer, v.cfg.Audience)
	default:
		return Claims{}, errors.New("unsupported session mode")
	}
}

// Middleware resolves the viewer for every request and stores it in the
// request context. onInvalid fires when a presented token fails
// verification; the request still proceeds anonymously.
func (v *Verifier) Middleware(onInvalid func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := market.Anonymous()
			if v.mode != "off" {
				if token, ok := bearerToken(r); ok {
					claims, err := v.Verify(token, time.Now().UTC())
					if err != nil {
						if onInvalid != nil {
							onInvalid()
						}
					} else {
						user = claims.UserContext()
					}
				}
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return "", false
	}
	return strings.TrimSpace(header[len("Bearer "):]), true
}

func WithUser(ctx context.Context, user market.UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the viewer resolved by the middleware. Outside a
// request it reports an anonymous viewer and false.
func UserFromContext(ctx context.Context) (market.UserContext, bool) {
	v := ctx.Value(userContextKey)
	if v == nil {
		return market.Anonymous(), false
	}
	user, ok := v.(market.UserContext)
	if !ok {
		return market.Anonymous(), false
	}
	return user, true
}

// VerifyHS256Token checks an HMAC-SHA256 signed token against secret.
func VerifyHS256Token(token, secret string, now time.Time, issuer, audience string) (Claims, error) {
	if secret == "" {
		return Claims{}, errors.New("secret is required")
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, errors.New("invalid token format")
	}
	headerRaw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Claims{}, err
	}
	payloadRaw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, err
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return Claims{}, err
	}
	var header struct {
		Alg string `json:"alg"`
		Typ string `json:"typ"`
	}
	if err := json.Unmarshal(headerRaw, &header); err != nil {
		return Claims{}, err
	}
	if strings.ToUpper(header.Alg) != "HS256" {
		return Claims{}, errors.New("unsupported alg")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(parts[0] + "." + parts[1]))
	expected := mac.Sum(nil)
	if !hmac.Equal(sig, expected) {
		return Claims{}, errors.New("signature mismatch")
	}
	claims, err := parseClaims(payloadRaw)
	if err != nil {
		return Claims{}, err
	}
	if err := checkClaims(claims, now, issuer, audience); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

// VerifyRS256Token checks an RSA-signed token against the JWKS cache.
func VerifyRS256Token(token string, now time.Time, cache *jwksCache, issuer, audience string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, errors.New("invalid token format")
	}
	headerRaw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return Claims{}, err
	}
	payloadRaw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, err
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return Claims{}, err
	}
	var header struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal(headerRaw, &header); err != nil {
		return Claims{}, err
	}
	if strings.ToUpper(header.Alg) != "RS256" {
		return Claims{}, errors.New("unsupported alg")
	}
	if strings.TrimSpace(header.Kid) == "" {
		return Claims{}, errors.New("kid required")
	}
	pub, err := cache.key(context.Background(), header.Kid, now)
	if err != nil {
		return Claims{}, err
	}
	h := sha256.Sum256([]byte(parts[0] + "." + parts[1]))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, h[:], sig); err != nil {
		return Claims{}, err
	}
	claims, err := parseClaims(payloadRaw)
	if err != nil {
		return Claims{}, err
	}
	if err := checkClaims(claims, now, issuer, audience); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

// parseClaims decodes field by field so one mistyped claim does not void
// the rest. caps and owned accept a list or a single string.
func parseClaims(payloadRaw []byte) (Claims, error) {
	var claims Claims
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payloadRaw, &raw); err != nil {
		return Claims{}, err
	}
	if v, ok := raw["sub"]; ok {
		_ = json.Unmarshal(v, &claims.Sub)
	}
	if v, ok := raw["caps"]; ok {
		claims.Caps = stringListClaim(v)
	}
	if v, ok := raw["owned"]; ok {
		claims.Owned = stringListClaim(v)
	}
	if v, ok := raw["exp"]; ok {
		_ = json.Unmarshal(v, &claims.Exp)
	}
	if v, ok := raw["nbf"]; ok {
		_ = json.Unmarshal(v, &claims.Nbf)
	}
	if v, ok := raw["iat"]; ok {
		_ = json.Unmarshal(v, &claims.Iat)
	}
	if v, ok := raw["iss"]; ok {
		_ = json.Unmarshal(v, &claims.Iss)
	}
	if v, ok := raw["aud"]; ok {
		var audAny any
		_ = json.Unmarshal(v, &audAny)
		claims.Aud = audAny
	}
	return claims, nil
}

func stringListClaim(raw json.RawMessage) []string {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return []string{single}
	}
	return nil
}

func checkClaims(claims Claims, now time.Time, issuer, audience string) error {
	if claims.Sub == "" {
		return errors.New("subject required")
	}
	if claims.Exp == 0 || now.Unix() >= claims.Exp {
		return errors.New("token expired")
	}
	if claims.Nbf != 0 && now.Unix() < claims.Nbf {
		return errors.New("token not active")
	}
	if issuer != "" && claims.Iss != issuer {
		return errors.New("issuer mismatch")
	}
	if audience != "" && !audContains(claims.Aud, audience) {
		return errors.New("audience mismatch")
	}
	return nil
}

func audContains(aud any, expected string) bool {
	switch v := aud.(type) {
	case string:
		return v == expected
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == expected {
				return true
			}
		}
	case nil:
		return false
	}
	return false
}

type jwksCache struct {
	url       string
	timeout   time.Duration
	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	expiresAt time.Time
	client    *http.Client
}

func newJWKSCache(jwksURL string, timeout time.Duration) *jwksCache {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &jwksCache{
		url:     jwksURL,
		timeout: timeout,
		keys:    map[string]*rsa.PublicKey{},
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *jwksCache) key(ctx context.Context, kid string, now time.Time) (*rsa.PublicKey, error) {
	if c == nil {
		return nil, errors.New("jwks cache is nil")
	}
	if c.url == "" {
		return nil, errors.New("jwks url is required")
	}
	c.mu.RLock()
	if key, ok := c.keys[kid]; ok && now.Before(c.expiresAt) {
		c.mu.RUnlock()
		return key, nil
	}
	c.mu.RUnlock()
	if err := c.refresh(ctx, now); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.keys[kid]
	if !ok {
		return nil, errors.New("kid not found in jwks")
	}
	return key, nil
}

func (c *jwksCache) refresh(ctx context.Context, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.Before(c.expiresAt) {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.New("jwks fetch failed")
	}
	var payload struct {
		Keys []struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			Alg string `json:"alg"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return err
	}
	next := map[string]*rsa.PublicKey{}
	for _, k := range payload.Keys {
		if strings.ToUpper(k.Kty) != "RSA" || strings.TrimSpace(k.Kid) == "" {
			continue
		}
		pub, err := rsaFromJWK(k.N, k.E)
		if err != nil {
			continue
		}
		next[k.Kid] = pub
	}
	if len(next) == 0 {
		return errors.New("jwks has no valid rsa keys")
	}
	c.keys = next
	c.expiresAt = now.Add(5 * time.Minute)
	return nil
}

func rsaFromJWK(nB64, eB64 string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, err
	}
	if len(eb) == 0 {
		return nil, errors.New("invalid exponent")
	}
	e := 0
	for _, b := range eb {
		e = e<<8 + int(b)
	}
	if e <= 1 {
		return nil, errors.New("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}
