package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"
)

// nllbBackend talks to a local NLLB-200 serving endpoint over HTTP.
//
// POST {base}/translate  {"text","source","target"} -> {"translation"}
// POST {base}/release    advisory accelerator cleanup, 404 tolerated
type nllbBackend struct {
	prov   Provider
	client *http.Client
	rl     *rateLimitState
}

type nllbRequest struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Target string `json:"target"`
}

type nllbResponse struct {
	Translation string `json:"translation"`
	Error       string `json:"error,omitempty"`
}

func newNLLBBackend(prov Provider) *nllbBackend {
	if prov.BaseURL == "" {
		prov.BaseURL = DefaultProviders()[ProviderNLLB].BaseURL
	}
	return &nllbBackend{
		prov:   prov,
		client: makeHTTPClient(prov.Proxy, prov.effectiveTimeout()),
		rl:     &rateLimitState{},
	}
}

func (b *nllbBackend) Translate(ctx context.Context, text, srcLocale, tgtLocale string) (string, error) {
	body, err := json.Marshal(nllbRequest{Text: text, Source: srcLocale, Target: tgtLocale})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	endpoint := b.prov.BaseURL + "/translate"
	maxRetries := b.prov.effectiveMaxRetries()

	for attempt := 0; attempt <= maxRetries; attempt++ {
		// Wait if globally paused (rate limit hit by another worker)
		if err := b.rl.waitIfPaused(ctx); err != nil {
			return "", err
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if b.prov.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+b.prov.APIKey)
		}

		if b.prov.Verbose {
			log.Printf("[DEBUG] %s attempt %d: POST %s", b.prov.Name, attempt+1, endpoint)
		}

		resp, err := b.client.Do(req)
		if err != nil {
			if attempt < maxRetries {
				wait := time.Duration(math.Pow(2, float64(attempt))) * time.Second
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(wait):
				}
				continue
			}
			return "", fmt.Errorf("translate request failed: %w", err)
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			retryDelay := parseRetryDelay(resp)
			if b.prov.Verbose {
				log.Printf("[DEBUG] 429 rate limited, waiting %v before retry (attempt %d/%d)", retryDelay, attempt+1, maxRetries)
			}
			// Globally pause all workers
			b.rl.pause(retryDelay)
			if attempt < maxRetries {
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(retryDelay):
				}
				b.rl.unpause()
				continue
			}
			return "", fmt.Errorf("rate limited after %d retries", maxRetries)
		}

		if resp.StatusCode != http.StatusOK {
			if attempt < maxRetries && resp.StatusCode >= 500 {
				wait := time.Duration(math.Pow(2, float64(attempt))) * time.Second
				select {
				case <-ctx.Done():
					return "", ctx.Err()
				case <-time.After(wait):
				}
				continue
			}
			return "", fmt.Errorf("translate endpoint returned status %d: %s", resp.StatusCode, truncate(string(respBody), 500))
		}

		var out nllbResponse
		if err := json.Unmarshal(respBody, &out); err != nil {
			return "", fmt.Errorf("decoding translate response: %w", err)
		}
		if out.Translation == "" {
			if out.Error != "" {
				return "", fmt.Errorf("translate endpoint error: %s", out.Error)
			}
			// The engine never sends blank text, so an empty reply means the
			// serving side dropped the unit.
			return "", errors.New("empty translation in response")
		}
		return out.Translation, nil
	}

	return "", fmt.Errorf("exhausted all %d retries", maxRetries)
}

// Release asks the serving side to drop cached accelerator memory. Older
// serving builds predate the endpoint, so 404 is not an error.
func (b *nllbBackend) Release(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.prov.BaseURL+"/release", nil)
	if err != nil {
		return fmt.Errorf("creating release request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("release request failed: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("release returned status %d", resp.StatusCode)
	}
	return nil
}

func (b *nllbBackend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

// parseRetryDelay extracts the server-advised wait from a 429 response's
// Retry-After header, either delay-seconds or an HTTP date, padded with a
// small buffer. Responses without the header get a conservative default.
func parseRetryDelay(resp *http.Response) time.Duration {
	const defaultDelay = 65 * time.Second // 60s + 5s buffer

	after := resp.Header.Get("Retry-After")
	if after == "" {
		return defaultDelay
	}
	if secs, err := strconv.ParseFloat(after, 64); err == nil && secs > 0 {
		return time.Duration(secs*1000)*time.Millisecond + 5*time.Second
	}
	if at, err := http.ParseTime(after); err == nil {
		if d := time.Until(at); d > 0 {
			return d + 5*time.Second
		}
	}
	return defaultDelay
}

var (
	_ Backend  = (*nllbBackend)(nil)
	_ Releaser = (*nllbBackend)(nil)
)
