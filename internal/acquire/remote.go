package acquire

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"reelrender/internal/pkg/errors"
	"reelrender/internal/pkg/logger"
)

type FetcherConfig struct {
	RetryMax int
	Timeout  time.Duration
	MaxBytes int64
	// RetryWaitMin overrides the first backoff step; tests shorten it.
	RetryWaitMin time.Duration
}

// Fetcher downloads remote videos with retries on 5xx and connection errors.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	log      *logger.Logger
}

func NewFetcher(cfg FetcherConfig, log *logger.Logger) *Fetcher {
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if log == nil {
		log = logger.NewDefault()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.Logger = nil
	retryClient.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	if cfg.RetryWaitMin > 0 {
		retryClient.RetryWaitMin = cfg.RetryWaitMin
		retryClient.RetryWaitMax = 4 * cfg.RetryWaitMin
	}

	return &Fetcher{
		client:   retryClient.StandardClient(),
		maxBytes: cfg.MaxBytes,
		log:      log.WithComponent("fetcher"),
	}
}

// Remote returns a Source for rawURL. The URL is validated here so a bad
// request fails before any job state exists.
func (f *Fetcher) Remote(rawURL string) (Remote, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Remote{}, errors.ValidationField("videoUrl", "videoUrl must be an absolute http(s) URL")
	}
	return Remote{URL: u.String(), fetcher: f}, nil
}

// Remote is a video behind an http(s) URL.
type Remote struct {
	URL     string
	fetcher *Fetcher
}

func (r Remote) Describe() string { return "url:" + r.URL }

func (r Remote) Materialize(ctx context.Context, dir, jobID string) (string, error) {
	f := r.fetcher
	log := f.log.FromContext(ctx)
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return "", errors.ValidationField("videoUrl", "invalid videoUrl")
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", errors.Acquisition(err, "acquire.remote", "failed to fetch video").WithField("url", r.URL)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errors.Acquisition(fmt.Errorf("unexpected status %s", resp.Status), "acquire.remote", "failed to fetch video").
			WithField("url", r.URL).
			WithField("status", resp.StatusCode)
	}
	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return "", errors.ValidationField("videoUrl", fmt.Sprintf("%s (%d bytes)", ErrTooLarge, f.maxBytes))
	}

	path, err := save(ctx, resp.Body, dir, jobID, f.maxBytes, "acquire.remote")
	if err != nil {
		return "", err
	}
	log.Info("remote video fetched",
		"url", r.URL,
		"content_type", resp.Header.Get("Content-Type"),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return path, nil
}
