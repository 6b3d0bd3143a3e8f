// Package provider implements the LabelProvider contract: download an
// image, call a vendor label-detection endpoint, normalize to lowercased
// labels. The real vendor SDKs are out of scope, so the three adapters
// stay deliberately thin and talk to an injectable endpoint URL instead.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lerian-labs/icvsb-gateway/internal/apperr"
	"github.com/lerian-labs/icvsb-gateway/internal/mlog"
	"github.com/lerian-labs/icvsb-gateway/internal/model"
)

// DefaultDeadline is the per-call timeout used absent explicit
// configuration.
const DefaultDeadline = 30 * time.Second

// Result is the outcome of one fetch call.
type Result struct {
	Body    []byte
	Success bool
	Labels  map[string]float64
}

// LabelProvider is the single seam to vendor code.
type LabelProvider interface {
	Fetch(ctx context.Context, uri string, maxLabels int, minConfidence float64) Result
}

// base holds the behavior shared by every vendor adapter: download,
// deadline enforcement, failure-to-Result conversion. Errors never escape
// Fetch; they always collapse into success=false rows instead.
type base struct {
	httpClient  *http.Client
	endpointURL string
	deadline    time.Duration
}

func newBase(httpClient *http.Client, endpointURL string, deadline time.Duration) base {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if deadline <= 0 {
		deadline = DefaultDeadline
	}

	return base{httpClient: httpClient, endpointURL: endpointURL, deadline: deadline}
}

// download fetches uri's bytes, rejecting non-image content types with
// apperr.ErrUnsupportedMedia.
func (b base) download(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrDownloadFailed, err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", apperr.ErrDownloadFailed, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: %s", apperr.ErrUnsupportedMedia, contentType)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrDownloadFailed, err)
	}

	return body, nil
}

// callVendor POSTs imageBytes to the vendor endpoint and decodes the JSON
// reply into out.
func (b base) callVendor(ctx context.Context, imageBytes []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpointURL, bytes.NewReader(imageBytes))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("vendor returned status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// failureResult converts err into the {service_error: "<class> - <message>"}
// shape every adapter failure uses.
func failureResult(class string, err error) Result {
	body, _ := json.Marshal(model.ServiceErrorBody{ServiceError: fmt.Sprintf("%s - %s", class, err.Error())})

	return Result{Body: body, Success: false, Labels: map[string]float64{}}
}

// timeoutResult is the exact shape returned on a per-call deadline expiry.
func timeoutResult() Result {
	body, _ := json.Marshal(model.ServiceErrorBody{ServiceError: "timeout"})

	return Result{Body: body, Success: false, Labels: map[string]float64{}}
}

// mustMarshalLabels encodes a successful normalized label set into the
// body shape model.Response.Labels() decodes.
func mustMarshalLabels(labels map[string]float64) []byte {
	return model.EncodeLabels(labels)
}

// withDeadline runs fn under a deadline of d, converting a context
// deadline exceeded into the canonical timeout Result.
func withDeadline(ctx context.Context, logger mlog.Logger, d time.Duration, fn func(ctx context.Context) Result) Result {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan Result, 1)

	go func() {
		done <- fn(ctx)
	}()

	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		logger.Warnf("provider: call timed out after %s", d)
		return timeoutResult()
	}
}

// normalizeLabels lowercases keys and truncates to maxLabels, honoring
// minConfidence unless ignoreMinConfidence is set (Azure).
func normalizeLabels(raw map[string]float64, maxLabels int, minConfidence float64, ignoreMinConfidence bool) map[string]float64 {
	out := make(map[string]float64, len(raw))

	for label, confidence := range raw {
		if !ignoreMinConfidence && confidence < minConfidence {
			continue
		}

		out[strings.ToLower(label)] = confidence
	}

	if len(out) <= maxLabels {
		return out
	}

	// Truncate deterministically by descending confidence so repeated
	// benchmark runs against a stubbed endpoint are reproducible.
	keys := make([]string, 0, len(out))
	for k := range out {
		keys = append(keys, k)
	}

	sortByConfidenceDesc(keys, out)

	truncated := make(map[string]float64, maxLabels)
	for _, k := range keys[:maxLabels] {
		truncated[k] = out[k]
	}

	return truncated
}

func sortByConfidenceDesc(keys []string, values map[string]float64) {
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && less(keys, values, j); j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
}

func less(keys []string, values map[string]float64, j int) bool {
	if values[keys[j]] != values[keys[j-1]] {
		return values[keys[j]] > values[keys[j-1]]
	}

	return keys[j] < keys[j-1]
}
