package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"listings-pipeline/utils"
)

// Rates maps a currency code to the number of EUR one unit of that currency is worth.
type Rates map[string]float64

// staticRates are approximate multipliers used when neither the rate service nor a
// cache file is available.
var staticRates = Rates{
	"EUR": 1.0,
	"USD": 0.8779,
	"GBP": 1.1870,
	"JPY": 0.006076,
	"CHF": 1.0660,
}

// StaticRates returns a copy of the built-in fallback table.
func StaticRates() Rates {
	return staticRates.clone()
}

func (r Rates) clone() Rates {
	out := make(Rates, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// withEUR returns a copy that is guaranteed to map EUR to 1.0.
func (r Rates) withEUR() Rates {
	out := r.clone()
	out["EUR"] = 1.0
	return out
}

// RateSource names the tier of the fallback chain that produced a mapping.
type RateSource string

const (
	RateSourceCache      RateSource = "cache"
	RateSourceNetwork    RateSource = "network"
	RateSourceStaleCache RateSource = "stale-cache"
	RateSourceStatic     RateSource = "static"
)

// ErrMissingRate is returned by a fetch whose response lacks a usable rate for a
// requested currency.
var ErrMissingRate = errors.New("rate service returned no usable rate")

// RateSnapshot is the on-disk cache format.
type RateSnapshot struct {
	TS    float64 `json:"ts"`
	Rates Rates   `json:"rates"`
}

// FetchedAt converts the epoch-seconds timestamp to a time.Time.
func (s RateSnapshot) FetchedAt() time.Time {
	sec, frac := math.Modf(s.TS)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// RateProviderConfig configures a RateProvider.
type RateProviderConfig struct {
	APIURL    string
	CachePath string
	TTL       time.Duration
	Timeout   time.Duration
}

// RateProvider resolves currency multipliers with a cache-first, network-second,
// stale-cache-third, static-table-last policy. It never fails.
type RateProvider struct {
	client    *http.Client
	apiURL    string
	cachePath string
	ttl       time.Duration
	timeout   time.Duration
	logger    *utils.Logger
	now       func() time.Time
}

// NewRateProvider creates a RateProvider. A nil client gets one built from cfg.Timeout.
func NewRateProvider(cfg RateProviderConfig, client *http.Client, logger *utils.Logger) *RateProvider {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if client == nil {
		client = utils.NewHTTPClient(cfg.Timeout)
	}
	return &RateProvider{
		client:    client,
		apiURL:    cfg.APIURL,
		cachePath: cfg.CachePath,
		ttl:       cfg.TTL,
		timeout:   cfg.Timeout,
		logger:    logger,
		now:       time.Now,
	}
}

// GetRates returns the currency → EUR mapping and the tier that served it.
//
// A fresh cache (younger than the TTL) short-circuits the network. When the fetch
// fails, an expired cache is returned before the static table; the TTL is not
// enforced on that path.
func (p *RateProvider) GetRates(ctx context.Context, base string, symbols []string, useCache bool) (Rates, RateSource) {
	base = strings.ToUpper(strings.TrimSpace(base))
	if base == "" {
		base = "EUR"
	}
	symbols = normalizeSymbols(base, symbols)

	if useCache {
		if snap, err := p.readCache(); err == nil && snap != nil {
			age := p.now().Sub(snap.FetchedAt())
			if age < p.ttl {
				p.logger.Debug("[rates] Using cached exchange rates from %s (age %v)", p.cachePath, age.Round(time.Second))
				return snap.Rates.withEUR(), RateSourceCache
			}
			p.logger.Debug("[rates] Cached exchange rates expired (age %v)", age.Round(time.Second))
		}
	}

	rates, err := p.fetch(ctx, base, symbols)
	if err == nil {
		p.writeCache(rates)
		p.logger.Info("[rates] Fetched %d exchange rates from %s", len(rates), p.apiURL)
		return rates, RateSourceNetwork
	}
	p.logger.Warn("[rates] Failed to fetch exchange rates: %v", err)

	if snap, cerr := p.readCache(); cerr == nil && snap != nil {
		p.logger.Warn("[rates] Using cached exchange rates from %s as fallback (fetched %s)",
			p.cachePath, snap.FetchedAt().UTC().Format(time.RFC3339))
		return snap.Rates.withEUR(), RateSourceStaleCache
	}

	p.logger.Warn("[rates] No rate cache available, using static fallback rates")
	return StaticRates(), RateSourceStatic
}

func normalizeSymbols(base string, symbols []string) []string {
	if len(symbols) == 0 {
		symbols = []string{"USD", "GBP", "JPY", "CHF"}
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || s == base {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

type rateResponse struct {
	Rates map[string]float64 `json:"rates"`
}

// fetch queries the rate service once. The service quotes units of foreign currency
// per unit of base, so every rate is inverted.
func (p *RateProvider) fetch(ctx context.Context, base string, symbols []string) (Rates, error) {
	if p.apiURL == "" {
		return nil, errors.New("rates: no API URL configured")
	}
	u, err := url.Parse(p.apiURL)
	if err != nil {
		return nil, fmt.Errorf("rates: parse API URL: %w", err)
	}
	q := u.Query()
	q.Set("base", base)
	q.Set("symbols", strings.Join(symbols, ","))
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("rates: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rates: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("rates: unexpected status %d", resp.StatusCode)
	}

	var body rateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("rates: decode response: %w", err)
	}

	rates := make(Rates, len(body.Rates)+1)
	for code, perBase := range body.Rates {
		if usableRate(perBase) && usableRate(1.0/perBase) {
			rates[strings.ToUpper(code)] = 1.0 / perBase
		}
	}
	for _, s := range symbols {
		if _, ok := rates[s]; !ok {
			return nil, fmt.Errorf("rates: %w: %s", ErrMissingRate, s)
		}
	}
	rates["EUR"] = 1.0
	return rates, nil
}

func usableRate(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// readCache returns (nil, nil) when no cache file exists. Unreadable or corrupt
// files are logged and reported as errors so callers treat them as a miss.
func (p *RateProvider) readCache() (*RateSnapshot, error) {
	if p.cachePath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(p.cachePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		p.logger.Warn("[rates] Error reading rate cache %s: %v", p.cachePath, err)
		return nil, err
	}

	var snap RateSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		p.logger.Warn("[rates] Ignoring corrupt rate cache %s: %v", p.cachePath, err)
		return nil, err
	}
	for code, v := range snap.Rates {
		if !usableRate(v) {
			delete(snap.Rates, code)
		}
	}
	if len(snap.Rates) == 0 {
		p.logger.Warn("[rates] Ignoring rate cache %s without rates", p.cachePath)
		return nil, errors.New("rates: empty cache")
	}
	return &snap, nil
}

// writeCache replaces the cache file atomically. Failures are logged, not returned:
// the cache only saves a network call.
func (p *RateProvider) writeCache(rates Rates) {
	if p.cachePath == "" {
		return
	}
	now := p.now()
	snap := RateSnapshot{TS: float64(now.UnixNano()) / 1e9, Rates: rates}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		p.logger.Warn("[rates] Error encoding rate cache: %v", err)
		return
	}

	dir := filepath.Dir(p.cachePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		p.logger.Warn("[rates] Error creating cache dir %s: %v", dir, err)
		return
	}
	tmp, err := os.CreateTemp(dir, ".rates-*.json")
	if err != nil {
		p.logger.Warn("[rates] Error writing rate cache: %v", err)
		return
	}
	tmpName := tmp.Name()
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(tmpName)
		p.logger.Warn("[rates] Error writing rate cache: %v", errors.Join(werr, cerr))
		return
	}
	if err := os.Rename(tmpName, p.cachePath); err != nil {
		_ = os.Remove(tmpName)
		p.logger.Warn("[rates] Error replacing rate cache %s: %v", p.cachePath, err)
		return
	}
	p.logger.Debug("[rates] Cached exchange rates to %s", p.cachePath)
}
