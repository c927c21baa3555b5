package remote

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"smokehouse/internal/logger"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	profileExt   = ".prof"
	listCacheKey = "profiles"
	maxBodyBytes = 64 << 10
)

var (
	ErrNoNetwork = errors.New("no network connection")
	ErrFetch     = errors.New("remote fetch failed")
	ErrParse     = errors.New("remote listing could not be parsed")
)

// NetworkStatus reports station-mode connectivity.
type NetworkStatus interface {
	Connected() bool
}

// Options address the remote profile source.
type Options struct {
	APIURL       string
	BaseURL      string
	UserAgent    string
	ListTimeout  time.Duration
	FetchTimeout time.Duration
	ListCacheTTL time.Duration
	RatePerSec   float64
	Burst        int
}

// Client lists and fetches profiles from the remote repository. The
// certificate chain is not verified.
type Client struct {
	http    *http.Client
	net     NetworkStatus
	opts    Options
	cache   *cache.Cache
	limiter *rate.Limiter
	log     *logger.Logger
}

func NewClient(net NetworkStatus, opts Options, log *logger.Logger) *Client {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}
	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
				Proxy:           http.ProxyFromEnvironment,
			},
		},
		net:     net,
		opts:    opts,
		cache:   cache.New(opts.ListCacheTTL, 2*opts.ListCacheTTL),
		limiter: rate.NewLimiter(limit, opts.Burst),
		log:     log,
	}
}

// List returns the profile names in the remote directory, using the cached
// listing while it is fresh.
func (c *Client) List(ctx context.Context) ([]string, error) {
	if names, ok := c.cache.Get(listCacheKey); ok {
		return names.([]string), nil
	}
	body, err := c.get(ctx, c.opts.APIURL, "application/json", c.opts.ListTimeout)
	if err != nil {
		return nil, err
	}
	names, err := parseListing(body)
	if err != nil {
		return nil, err
	}
	if c.opts.ListCacheTTL > 0 {
		c.cache.Set(listCacheKey, names, cache.DefaultExpiration)
	}
	return names, nil
}

// Fetch downloads the raw text of one profile.
func (c *Client) Fetch(ctx context.Context, name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "/\\?#") {
		return "", fmt.Errorf("%w: invalid profile name %q", ErrFetch, name)
	}
	u := strings.TrimRight(c.opts.BaseURL, "/") + "/" + url.PathEscape(name)
	body, err := c.get(ctx, u, "text/plain", c.opts.FetchTimeout)
	if err != nil {
		return "", err
	}
	if len(body) == 0 {
		return "", fmt.Errorf("%w: %s: empty body", ErrFetch, name)
	}
	return string(body), nil
}

func (c *Client) get(ctx context.Context, u, accept string, timeout time.Duration) ([]byte, error) {
	if c.net != nil && !c.net.Connected() {
		return nil, ErrNoNetwork
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limited: %v", ErrFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", accept)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warnw("remote_request_failed", "url", u, "err", err)
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log.Warnw("remote_bad_status", "url", u, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d", ErrFetch, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrFetch, err)
	}
	return body, nil
}

// parseListing extracts *.prof names from a directory listing, a JSON array
// of objects with a "name" field. Malformed entries are skipped.
func parseListing(body []byte) ([]string, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	names := []string{}
	for _, raw := range entries {
		var e struct {
			Name *string `json:"name"`
		}
		if err := json.Unmarshal(raw, &e); err != nil || e.Name == nil {
			continue
		}
		n := *e.Name
		if len(n) > len(profileExt) && strings.HasSuffix(n, profileExt) {
			names = append(names, n)
		}
	}
	return names, nil
}
