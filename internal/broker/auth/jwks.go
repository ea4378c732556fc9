package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"

	"github.com/driftnotes/driftsync/internal/common"
	"github.com/driftnotes/driftsync/internal/logging"
)

const (
	jwksRetryBase     = 250 * time.Millisecond
	jwksRetryAttempts = 2
)

// KeySet is a cached view of the identity provider's JWKS document.
// It is read-mostly; refreshes run under a single-flight discipline so
// concurrent cache misses trigger exactly one upstream fetch.
type KeySet struct {
	url    string
	ttl    time.Duration
	client *http.Client
	logger logging.Logger
	now    func() time.Time

	sf singleflight.Group

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// NewKeySet builds a key cache for the given JWKS URL. The timeout bounds
// every upstream fetch.
func NewKeySet(url string, ttl, timeout time.Duration, logger logging.Logger) *KeySet {
	return &KeySet{
		url:    url,
		ttl:    ttl,
		client: &http.Client{Timeout: timeout},
		logger: logger.With("module", "jwks"),
		now:    time.Now,
	}
}

// Resolve returns the RSA public key for the given key id, refreshing the
// cache when it is stale or the id is unknown. An unknown id after a fresh
// fetch is an authentication failure, not an upstream one.
func (s *KeySet) Resolve(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok := s.cached(kid); ok {
		return key, nil
	}

	if _, err, _ := s.sf.Do("refresh", func() (any, error) {
		return nil, s.refresh(ctx, kid)
	}); err != nil {
		return nil, err
	}

	if key, ok := s.cached(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: signing key %q not found in key set", common.ErrUnauthenticated, kid)
}

func (s *KeySet) cached(kid string) (*rsa.PublicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fetchedAt.IsZero() || s.now().Sub(s.fetchedAt) > s.ttl {
		return nil, false
	}
	key, ok := s.keys[kid]
	return key, ok
}

func (s *KeySet) refresh(ctx context.Context, kid string) error {
	// A caller that lost the single-flight race may arrive here after the
	// winner already fetched the key it needs; skip the fetch in that case.
	// A kid the cache does not hold forces a refetch even inside the TTL,
	// so provider key rotation takes effect on the next token.
	s.mu.RLock()
	fresh := !s.fetchedAt.IsZero() && s.now().Sub(s.fetchedAt) <= s.ttl
	_, known := s.keys[kid]
	s.mu.RUnlock()
	if fresh && known {
		return nil
	}

	var keys map[string]*rsa.PublicKey
	backoff := retry.WithMaxRetries(jwksRetryAttempts, retry.NewExponential(jwksRetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		fetched, err := s.fetch(ctx)
		if err != nil {
			s.logger.Warn(ctx, "jwks fetch attempt failed", "error", err)
			return retry.RetryableError(err)
		}
		keys = fetched
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: jwks fetch failed: %v", common.ErrUpstreamUnavailable, err)
	}

	s.mu.Lock()
	s.keys = keys
	s.fetchedAt = s.now()
	s.mu.Unlock()

	s.logger.Info(ctx, "jwks refreshed", "keys", len(keys))
	return nil
}

type jwksDocument struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (s *KeySet) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks request returned HTTP %d", resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("jwks parse failed: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey)
	for _, k := range doc.Keys {
		if k.Kid == "" || k.Kty != "RSA" {
			continue
		}
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		key, err := rsaKeyFromComponents(k.N, k.E)
		if err != nil {
			return nil, fmt.Errorf("invalid jwks RSA key %q: %w", k.Kid, err)
		}
		keys[k.Kid] = key
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("jwks did not include any usable RSA signing keys")
	}
	return keys, nil
}

func rsaKeyFromComponents(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}

	exponent := 0
	for _, b := range eb {
		exponent = exponent<<8 | int(b)
	}
	if exponent <= 1 {
		return nil, fmt.Errorf("exponent out of range")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: exponent,
	}, nil
}
