// Package coverfetch implements pipeline.CoverFetcher with a bounded HTTP
// GET, treating any non-200 response or network error as a recoverable
// miss rather than a hard failure: metadata embedding proceeds without
// cover art rather than retrying or dead-lettering the whole task.
package coverfetch

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/kobold-io/kobold/pkg/logging"
)

// defaultTimeout bounds a single cover fetch so a slow or unreachable host
// can't stall the METADATA stage indefinitely.
const defaultTimeout = 10 * time.Second

// HTTPFetcher retrieves cover image bytes over HTTP.
type HTTPFetcher struct {
	client *http.Client
	logger *logging.Logger
}

// New constructs an HTTPFetcher with a bounded request timeout.
func New(logger *logging.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{Timeout: defaultTimeout},
		logger: logger.Sublogger("cover-fetcher"),
	}
}

// Fetch implements pipeline.CoverFetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Debugf("Cover fetch failed for %s: %s", url, err)
		return nil, false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Debugf("Cover fetch for %s returned status %d", url, resp.StatusCode)
		return nil, false, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, nil
	}
	return data, true, nil
}
