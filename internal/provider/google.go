package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lerian-labs/icvsb-gateway/internal/mlog"
)

// GoogleVision adapts a Google-style label detector. Success requires the
// vendor's top-level `responses` field.
type GoogleVision struct {
	base
}

// NewGoogleVision returns an adapter posting to endpointURL.
func NewGoogleVision(httpClient *http.Client, endpointURL string, deadline time.Duration) *GoogleVision {
	return &GoogleVision{base: newBase(httpClient, endpointURL, deadline)}
}

type googleResponse struct {
	Responses []struct {
		LabelAnnotations []struct {
			Description string  `json:"description"`
			Score       float64 `json:"score"`
		} `json:"labelAnnotations"`
	} `json:"responses"`
}

// Fetch implements LabelProvider.
func (g *GoogleVision) Fetch(ctx context.Context, uri string, maxLabels int, minConfidence float64) Result {
	return withDeadline(ctx, mlog.FromContext(ctx), g.deadline, func(ctx context.Context) Result {
		imageBytes, err := g.download(ctx, uri)
		if err != nil {
			return failureResult("DownloadError", err)
		}

		var parsed googleResponse
		if err := g.callVendor(ctx, imageBytes, &parsed); err != nil {
			return failureResult("GoogleVisionError", err)
		}

		if parsed.Responses == nil {
			return failureResult("GoogleVisionError", fmt.Errorf("missing responses field"))
		}

		raw := map[string]float64{}
		for _, r := range parsed.Responses {
			for _, l := range r.LabelAnnotations {
				raw[l.Description] = l.Score
			}
		}

		labels := normalizeLabels(raw, maxLabels, minConfidence, false)

		return Result{Body: mustMarshalLabels(labels), Success: true, Labels: labels}
	})
}
