package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lerian-labs/icvsb-gateway/internal/mlog"
)

// AmazonRekognition adapts an Amazon-style label detector. Success
// requires the vendor's top-level `labels` field.
type AmazonRekognition struct {
	base
}

// NewAmazonRekognition returns an adapter posting to endpointURL.
func NewAmazonRekognition(httpClient *http.Client, endpointURL string, deadline time.Duration) *AmazonRekognition {
	return &AmazonRekognition{base: newBase(httpClient, endpointURL, deadline)}
}

type amazonResponse struct {
	Labels []struct {
		Name       string  `json:"Name"`
		Confidence float64 `json:"Confidence"`
	} `json:"labels"`
}

// Fetch implements LabelProvider.
func (a *AmazonRekognition) Fetch(ctx context.Context, uri string, maxLabels int, minConfidence float64) Result {
	return withDeadline(ctx, mlog.FromContext(ctx), a.deadline, func(ctx context.Context) Result {
		imageBytes, err := a.download(ctx, uri)
		if err != nil {
			return failureResult("DownloadError", err)
		}

		var parsed amazonResponse
		if err := a.callVendor(ctx, imageBytes, &parsed); err != nil {
			return failureResult("AmazonRekognitionError", err)
		}

		if parsed.Labels == nil {
			return failureResult("AmazonRekognitionError", fmt.Errorf("missing labels field"))
		}

		raw := map[string]float64{}
		for _, l := range parsed.Labels {
			// Amazon reports confidence on a 0-100 scale; normalize to [0,1].
			raw[l.Name] = l.Confidence / 100
		}

		labels := normalizeLabels(raw, maxLabels, minConfidence, false)

		return Result{Body: mustMarshalLabels(labels), Success: true, Labels: labels}
	})
}
