package itunes

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/ewilliams-labs/otodoki/internal/core/ports"
)

const (
	DefaultBaseURL   = "https://itunes.apple.com"
	DefaultChartsURL = "https://rss.applemarketingtools.com/api/v2"
	defaultCountry   = "jp"
	defaultChartTTL  = 30 * time.Minute
	breakerName      = "itunes"
)

// Config configures the catalog client. Zero values fall back to defaults.
type Config struct {
	BaseURL      string
	ChartsURL    string
	Country      string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration

	// RequestsPerSecond limits outgoing requests; zero disables the limiter.
	RequestsPerSecond float64
	Burst             int

	// BreakerFailures is the consecutive failure count that opens the breaker.
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	ChartTTL time.Duration

	// OAuth, when TokenURL is set, wraps the transport with client credentials.
	OAuth OAuthConfig
}

// OAuthConfig holds client credentials for a token-protected catalog proxy.
type OAuthConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Client is an HTTP client for the iTunes Search API and the Apple chart feed.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	chartsURL   string
	country     string
	maxRetries  int
	baseBackoff time.Duration
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[[]byte]
	logger      zerolog.Logger

	chartTTL     time.Duration
	chartMu      sync.Mutex
	chartArtists []string
	chartFetched time.Time
	now          func() time.Time
}

// compile-time interface assertions
var (
	_ ports.CatalogSearcher = (*Client)(nil)
	_ ports.ChartSource     = (*Client)(nil)
)

// NewClient constructs a catalog client. httpClient may be nil.
func NewClient(httpClient *http.Client, cfg Config, logger zerolog.Logger) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if cfg.OAuth.TokenURL != "" {
		httpClient = oauthClient(httpClient, cfg.OAuth)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	chartsURL := cfg.ChartsURL
	if chartsURL == "" {
		chartsURL = DefaultChartsURL
	}
	country := strings.ToLower(cfg.Country)
	if country == "" {
		country = defaultCountry
	}
	chartTTL := cfg.ChartTTL
	if chartTTL <= 0 {
		chartTTL = defaultChartTTL
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	logger = logger.With().Str("component", "itunes_adapter").Logger()

	return &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(baseURL, "/"),
		chartsURL:   strings.TrimRight(chartsURL, "/"),
		country:     country,
		maxRetries:  cfg.MaxRetries,
		baseBackoff: cfg.RetryBackoff,
		limiter:     limiter,
		breaker:     newBreaker(cfg.BreakerFailures, cfg.BreakerTimeout, logger),
		logger:      logger,
		chartTTL:    chartTTL,
		now:         time.Now,
	}
}

// oauthClient returns a client that attaches client-credentials tokens,
// reusing base for both token and API requests.
func oauthClient(base *http.Client, cfg OAuthConfig) *http.Client {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := cc.Client(ctx)
	client.Timeout = base.Timeout
	return client
}

// BreakerState reports the circuit breaker state name.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}
