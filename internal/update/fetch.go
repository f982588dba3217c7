package update

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the version service queried for the latest release.
	DefaultBaseURL = "https://api.jobrunr.io"
	// DefaultProduct is the product path segment of the version service.
	DefaultProduct = "jobrunr"
	// DefaultTimeout bounds both connecting and waiting for the response.
	DefaultTimeout = 2000 * time.Millisecond

	maxBodySize = 1 << 20
)

var latestVersionPattern = regexp.MustCompile(`"latestVersion"\s*:\s*"([^,]*)",`)

// Telemetry is the anonymous usage data attached to a version check when the
// operator allows it.
type Telemetry struct {
	ClusterID         string
	SucceededJobCount int64
}

// Fetcher looks up the latest published version.
type Fetcher interface {
	LatestVersion(ctx context.Context, currentVersion string, telemetry *Telemetry) (string, error)
}

// HTTPClient is the subset of *http.Client used by HTTPFetcher.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// FetcherOption configures an HTTPFetcher.
type FetcherOption func(*HTTPFetcher)

// WithBaseURL sets the version service address.
func WithBaseURL(base string) FetcherOption {
	return func(f *HTTPFetcher) {
		if base != "" {
			f.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithProduct sets the product whose latest version is requested.
func WithProduct(product string) FetcherOption {
	return func(f *HTTPFetcher) {
		if product != "" {
			f.product = product
		}
	}
}

// WithTimeouts replaces the connect and read timeouts of the default client.
// It has no effect together with WithHTTPClient.
func WithTimeouts(connect, read time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		if connect > 0 {
			f.connectTimeout = connect
		}
		if read > 0 {
			f.readTimeout = read
		}
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c HTTPClient) FetcherOption {
	return func(f *HTTPFetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// HTTPFetcher asks the jobrunr version service for the latest release.
type HTTPFetcher struct {
	baseURL        string
	product        string
	connectTimeout time.Duration
	readTimeout    time.Duration
	client         HTTPClient
}

// NewHTTPFetcher creates a fetcher for the public version service.
func NewHTTPFetcher(opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		baseURL:        DefaultBaseURL,
		product:        DefaultProduct,
		connectTimeout: DefaultTimeout,
		readTimeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = newHTTPClient(f.connectTimeout, f.readTimeout)
	}
	return f
}

func newHTTPClient(connect, read time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connect}).DialContext
	transport.TLSHandshakeTimeout = connect
	transport.ResponseHeaderTimeout = read
	return &http.Client{
		Transport: transport,
		Timeout:   connect + read,
	}
}

// RequestURL returns the URL queried for currentVersion.
func (f *HTTPFetcher) RequestURL(currentVersion string, telemetry *Telemetry) string {
	var b strings.Builder
	b.WriteString(f.baseURL)
	b.WriteString("/api/version/")
	b.WriteString(url.PathEscape(f.product))
	b.WriteString("/latest?currentVersion=")
	b.WriteString(url.QueryEscape(currentVersion))
	if telemetry != nil {
		b.WriteString("&clusterId=")
		b.WriteString(url.QueryEscape(telemetry.ClusterID))
		b.WriteString("&succeededJobCount=")
		b.WriteString(strconv.FormatInt(telemetry.SucceededJobCount, 10))
	}
	return b.String()
}

// LatestVersion implements Fetcher. The returned version has any leading 'v'
// removed.
func (f *HTTPFetcher) LatestVersion(ctx context.Context, currentVersion string, telemetry *Telemetry) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.RequestURL(currentVersion, telemetry), nil)
	if err != nil {
		return "", fmt.Errorf("build version request: %w", err)
	}
	req.Header.Set("User-Agent", ProductName+" "+currentVersion)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", classifyTransportError(err)
	}
	content := joinLines(body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &RemoteError{StatusCode: resp.StatusCode, Body: content}
	}

	m := latestVersionPattern.FindStringSubmatch(content)
	if m == nil {
		return "", ErrProtocolDrift
	}
	return trimV(m[1]), nil
}

func classifyTransportError(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Errorf("%w: %v", ErrHostUnresolvable, err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("check latest version: %w", err)
}

// joinLines drops line terminators so the body reads as one line of text.
func joinLines(body []byte) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(string(body))
}
