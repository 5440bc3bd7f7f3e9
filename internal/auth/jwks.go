package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

var ErrKeyNotFound = errors.New("jwks: key not found")

const (
	defaultJWKSRefresh = 15 * time.Minute
	jwksFetchTimeout   = 10 * time.Second
	// minMissRefetch bounds how often an unknown kid can trigger a fetch.
	minMissRefetch = 30 * time.Second
)

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JWKS holds the identity provider's RSA signing keys by kid and keeps them
// fresh in the background.
type JWKS struct {
	url    string
	client *http.Client
	log    *zap.Logger

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time

	cancel context.CancelFunc
}

// NewJWKS loads the key set once and then refetches it every refreshInterval
// (15m when zero) until Close.
func NewJWKS(url string, refreshInterval time.Duration, log *zap.Logger) (*JWKS, error) {
	if refreshInterval <= 0 {
		refreshInterval = defaultJWKSRefresh
	}
	if log == nil {
		log = zap.NewNop()
	}
	j := &JWKS{
		url:    url,
		client: &http.Client{Timeout: jwksFetchTimeout},
		log:    log,
		keys:   map[string]*rsa.PublicKey{},
	}
	if err := j.fetch(context.Background()); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	go j.refreshEvery(ctx, refreshInterval)
	return j, nil
}

func (j *JWKS) refreshEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.fetch(ctx); err != nil {
				j.log.Warn("jwks refresh failed, keeping previous keys", zap.String("url", j.url), zap.Error(err))
			}
		}
	}
}

func (j *JWKS) Close() {
	if j.cancel != nil {
		j.cancel()
	}
}

func (j *JWKS) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.url, nil)
	if err != nil {
		return fmt.Errorf("jwks: build request: %w", err)
	}
	resp, err := j.client.Do(req)
	if err != nil {
		return fmt.Errorf("jwks: fetch %s: %w", j.url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks: unexpected status %d", resp.StatusCode)
	}

	var set struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("jwks: decode: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			j.log.Warn("skipping malformed signing key", zap.String("kid", k.Kid), zap.Error(err))
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("jwks: no usable RSA keys")
	}

	j.mu.Lock()
	j.keys = keys
	j.fetchedAt = time.Now()
	j.mu.Unlock()
	return nil
}

func (k jwk) publicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() < 3 {
		return nil, errors.New("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}

func (j *JWKS) lookup(kid string) (*rsa.PublicKey, time.Time) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.keys[kid], j.fetchedAt
}

// Get returns the key for kid. An unknown kid triggers at most one refetch
// per minMissRefetch so rotated keys are picked up without waiting for the
// next scheduled refresh.
func (j *JWKS) Get(kid string) (interface{}, error) {
	if pub, _ := j.lookup(kid); pub != nil {
		return pub, nil
	}
	if j.url == "" {
		return nil, ErrKeyNotFound
	}
	if _, at := j.lookup(kid); time.Since(at) < minMissRefetch {
		return nil, ErrKeyNotFound
	}

	ctx, cancel := context.WithTimeout(context.Background(), jwksFetchTimeout)
	defer cancel()
	if err := j.fetch(ctx); err != nil {
		return nil, err
	}
	if pub, _ := j.lookup(kid); pub != nil {
		return pub, nil
	}
	return nil, ErrKeyNotFound
}
