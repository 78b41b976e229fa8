// Package resolver performs DNS-over-HTTPS lookups with a TTL-capped
// cache and single-flight deduplication, so concurrent factors querying
// the same name share one network round trip.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// MaxCacheTTL caps the cache entry lifetime regardless of what the DNS
// response advertises.
const MaxCacheTTL = 5 * time.Minute

// RecordType is one of the record types the Resolver understands.
type RecordType string

const (
	TypeTXT   RecordType = "TXT"
	TypeA     RecordType = "A"
	TypeMX    RecordType = "MX"
	TypeCNAME RecordType = "CNAME"
)

type cacheEntry struct {
	records   []string
	expiresAt time.Time
}

// Resolver performs DNS-over-HTTPS lookups against a configurable base
// URL (e.g. https://dns.google/resolve), caching and deduplicating
// concurrent identical lookups.
type Resolver struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger

	group singleflight.Group

	mu    sync.RWMutex
	cache map[string]cacheEntry

	// rdb, when set, is a secondary Redis-backed answer cache shared
	// across process restarts. Misses and Redis errors fall through to
	// the DoH query path.
	rdb *redis.Client
}

// New creates a Resolver against baseURL with the given HTTP timeout.
func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.Named("resolver"),
		cache:   make(map[string]cacheEntry),
	}
}

// WithRedisCache attaches a Redis client as a secondary answer cache so a
// restart doesn't cold-start DNS lookups under load.
func (r *Resolver) WithRedisCache(rdb *redis.Client) *Resolver {
	r.rdb = rdb
	return r
}

const redisKeyPrefix = "emailguard:dns:"

type dohAnswer struct {
	Name string `json:"name"`
	Type int    `json:"type"`
	TTL  int    `json:"TTL"`
	Data string `json:"data"`
}

type dohResponse struct {
	Status int         `json:"Status"`
	Answer []dohAnswer `json:"Answer"`
}

var typeCodes = map[RecordType]int{
	TypeA:     1,
	TypeCNAME: 5,
	TypeTXT:   16,
	TypeMX:    15,
}

func (r *Resolver) lookup(ctx context.Context, name string, rtype RecordType) ([]string, error) {
	key := string(rtype) + "|" + name

	r.mu.RLock()
	entry, ok := r.cache[key]
	r.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.records, nil
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		if records, ok := r.redisGet(ctx, key); ok {
			r.mu.Lock()
			r.cache[key] = cacheEntry{records: records, expiresAt: time.Now().Add(MaxCacheTTL)}
			r.mu.Unlock()
			return records, nil
		}

		records, ttl, err := r.query(ctx, name, rtype)
		if err != nil {
			return nil, err
		}
		if ttl > MaxCacheTTL {
			ttl = MaxCacheTTL
		}
		r.mu.Lock()
		r.cache[key] = cacheEntry{records: records, expiresAt: time.Now().Add(ttl)}
		r.mu.Unlock()
		r.redisSet(ctx, key, records, ttl)
		return records, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (r *Resolver) query(ctx context.Context, name string, rtype RecordType) ([]string, time.Duration, error) {
	code, ok := typeCodes[rtype]
	if !ok {
		return nil, 0, fmt.Errorf("unsupported record type: %s", rtype)
	}

	u := r.baseURL + "?" + url.Values{
		"name": {name},
		"type": {fmt.Sprintf("%d", code)},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/dns-json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("doh request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("doh request returned status %d", resp.StatusCode)
	}

	var parsed dohResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, 0, fmt.Errorf("decode doh response: %w", err)
	}

	var records []string
	minTTL := MaxCacheTTL
	for _, a := range parsed.Answer {
		records = append(records, unquoteTXT(a.Data))
		ttl := time.Duration(a.TTL) * time.Second
		if ttl < minTTL {
			minTTL = ttl
		}
	}
	if len(records) == 0 {
		minTTL = 30 * time.Second
	}
	return records, minTTL, nil
}

func (r *Resolver) redisGet(ctx context.Context, key string) ([]string, bool) {
	if r.rdb == nil {
		return nil, false
	}
	raw, err := r.rdb.Get(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		if err != redis.Nil {
			r.logger.Debug("redis cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var records []string
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, false
	}
	return records, true
}

func (r *Resolver) redisSet(ctx context.Context, key string, records []string, ttl time.Duration) {
	if r.rdb == nil || ttl <= 0 {
		return
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return
	}
	if err := r.rdb.Set(ctx, redisKeyPrefix+key, raw, ttl).Err(); err != nil {
		r.logger.Debug("redis cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// unquoteTXT strips the surrounding quotes DoH responses wrap TXT data in.
func unquoteTXT(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// LookupTXT satisfies dkim.Resolver, arc.Resolver, dmarc.Resolver,
// spf.Resolver.
func (r *Resolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	return r.lookup(ctx, name, TypeTXT)
}

func (r *Resolver) LookupA(ctx context.Context, name string) ([]string, error) {
	return r.lookup(ctx, name, TypeA)
}

func (r *Resolver) LookupMX(ctx context.Context, name string) ([]string, error) {
	return r.lookup(ctx, name, TypeMX)
}

func (r *Resolver) LookupCNAME(ctx context.Context, name string) ([]string, error) {
	return r.lookup(ctx, name, TypeCNAME)
}
