package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/lerian-labs/icvsb-gateway/internal/apperr"
	"github.com/lerian-labs/icvsb-gateway/internal/mlog"
)

// AzureVision adapts an Azure-style tag detector. Success requires the
// vendor's top-level `tags` field. Azure ignores minConfidence entirely.
type AzureVision struct {
	base
	subscriptionKey string
}

// NewAzureVision returns an adapter posting to endpointURL, reading its
// credential from AZURE_SUBSCRIPTION_KEY.
func NewAzureVision(httpClient *http.Client, endpointURL string, deadline time.Duration) *AzureVision {
	return &AzureVision{
		base:            newBase(httpClient, endpointURL, deadline),
		subscriptionKey: os.Getenv("AZURE_SUBSCRIPTION_KEY"),
	}
}

type azureResponse struct {
	Tags []struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	} `json:"tags"`
}

// Fetch implements LabelProvider.
func (a *AzureVision) Fetch(ctx context.Context, uri string, maxLabels int, _ float64) Result {
	return withDeadline(ctx, mlog.FromContext(ctx), a.deadline, func(ctx context.Context) Result {
		if a.subscriptionKey == "" {
			return failureResult("AzureVisionError", apperr.EntityNotFoundError{
				EntityType: "AzureCredential",
				Message:    "AZURE_SUBSCRIPTION_KEY is not configured",
			})
		}

		imageBytes, err := a.download(ctx, uri)
		if err != nil {
			return failureResult("DownloadError", err)
		}

		var parsed azureResponse
		if err := a.callVendorWithKey(ctx, imageBytes, &parsed); err != nil {
			return failureResult("AzureVisionError", err)
		}

		if parsed.Tags == nil {
			return failureResult("AzureVisionError", fmt.Errorf("missing tags field"))
		}

		raw := map[string]float64{}
		for _, t := range parsed.Tags {
			raw[t.Name] = t.Confidence
		}

		labels := normalizeLabels(raw, maxLabels, 0, true)

		return Result{Body: mustMarshalLabels(labels), Success: true, Labels: labels}
	})
}

func (a *AzureVision) callVendorWithKey(ctx context.Context, imageBytes []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpointURL, bytes.NewReader(imageBytes))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Ocp-Apim-Subscription-Key", a.subscriptionKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("vendor returned status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
