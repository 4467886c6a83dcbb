package resolver

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// UserAgent is sent with every metadata request.
var UserAgent = "stone (+https://github.com/jamesainslie/stone)"

// maxDocumentSize caps a single metadata document.
const maxDocumentSize = 64 << 20

var (
	// these errors aren't typed, so we match by regexp
	redirectsErrorRe  = regexp.MustCompile(`stopped after \d+ redirects\z`)
	schemeErrorRe     = regexp.MustCompile(`unsupported protocol scheme`)
	notTrustedErrorRe = regexp.MustCompile(`certificate is not trusted`)
)

// ClientOptions tunes the HTTP client used to talk to repositories.
type ClientOptions struct {
	Timeout      time.Duration
	Retries      int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// Transport overrides the default transport, mostly for tests.
	Transport http.RoundTripper
}

// DefaultClientOptions returns the client settings used when nothing is configured.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Timeout:      30 * time.Second,
		Retries:      4,
		RetryWaitMin: 500 * time.Millisecond,
		RetryWaitMax: 10 * time.Second,
	}
}

// ShouldRetryer lists the HTTP statuses worth retrying.
type ShouldRetryer []int

// Retry reports whether status should be retried.
func (s ShouldRetryer) Retry(status int) bool {
	return slices.Contains(s, status)
}

// DefaultRetryStatuses are transient server-side failures.
var DefaultRetryStatuses = ShouldRetryer{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// CheckRetry decides whether a request is retried.
//
// It never retries context errors, invalid schemes, redirect loops or TLS
// verification failures. Any other transport error is retried, and responses
// are retried when should lists their status.
func CheckRetry(ctx context.Context, resp *http.Response, err error, should ShouldRetryer) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			if redirectsErrorRe.MatchString(urlErr.Error()) ||
				schemeErrorRe.MatchString(urlErr.Error()) ||
				notTrustedErrorRe.MatchString(urlErr.Error()) {
				return false, errors.Unwrap(urlErr)
			}

			var unknownAuthority x509.UnknownAuthorityError
			if errors.As(urlErr.Err, &unknownAuthority) {
				return false, errors.Unwrap(urlErr)
			}
		}
		return true, nil
	}

	return should.Retry(resp.StatusCode), nil
}

func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	return CheckRetry(ctx, resp, err, DefaultRetryStatuses)
}

// NewClient returns an *http.Client that retries transient failures.
func NewClient(opts ClientOptions) *http.Client {
	retryClient := retryablehttp.NewClient()
	if opts.Transport != nil {
		retryClient.HTTPClient.Transport = opts.Transport
	}
	retryClient.Logger = nil
	retryClient.RetryMax = opts.Retries
	if opts.RetryWaitMin > 0 {
		retryClient.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		retryClient.RetryWaitMax = opts.RetryWaitMax
	}
	retryClient.CheckRetry = retryPolicy
	// Hand the last response back instead of a generic "giving up" error so
	// the caller can report the status.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	client := retryClient.StandardClient()
	client.Timeout = opts.Timeout
	return client
}

// HTTPFetcher fetches metadata documents over HTTP.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher returns a fetcher backed by a retrying client.
func NewHTTPFetcher(opts ClientOptions) *HTTPFetcher {
	return &HTTPFetcher{client: NewClient(opts)}
}

// FetchDocument implements DocumentFetcher.
func (f *HTTPFetcher) FetchDocument(ctx context.Context, repository, path, ifModifiedSince string) (*Document, error) {
	target := normalizeRepository(repository) + "/" + strings.TrimPrefix(path, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", target, err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	if ifModifiedSince != "" {
		req.Header.Set("If-Modified-Since", ifModifiedSince)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", target, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return nil, ErrNotModified
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, target)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetching %s: unexpected status %s", target, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", target, err)
	}

	return &Document{Body: body, LastModified: resp.Header.Get("Last-Modified")}, nil
}

func normalizeRepository(repository string) string {
	return strings.TrimRight(repository, "/")
}
