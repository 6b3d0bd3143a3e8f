// Package model defines the four persisted entities
// (BatchRequest, Request, Response, BenchmarkKey) plus the closed,
// seeded-at-init Service and Severity enumerations.
package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Service identifies a vendor adapter. The set is closed and seeded at
// startup.
type Service struct {
	ID   int64
	Name ServiceName
}

// ServiceName is one of the three closed vendor identifiers.
type ServiceName string

const (
	ServiceGoogle ServiceName = "google"
	ServiceAmazon ServiceName = "amazon"
	ServiceAzure  ServiceName = "azure"
)

// ValidServiceName reports whether name is one of the closed set.
func ValidServiceName(name string) bool {
	switch ServiceName(name) {
	case ServiceGoogle, ServiceAmazon, ServiceAzure:
		return true
	default:
		return false
	}
}

// Severity is the policy applied to invalid keys.
type Severity struct {
	ID   int64
	Name SeverityName
}

// SeverityName is one of the four closed severity policies.
type SeverityName string

const (
	SeverityException SeverityName = "exception"
	SeverityWarning    SeverityName = "warning"
	SeverityInfo       SeverityName = "info"
	SeverityNone       SeverityName = "none"
)

// ValidSeverityName reports whether name is one of the closed set.
func ValidSeverityName(name string) bool {
	switch SeverityName(name) {
	case SeverityException, SeverityWarning, SeverityInfo, SeverityNone:
		return true
	default:
		return false
	}
}

// BatchRequest groups the N single Requests made together in one
// benchmarking run or one client-issued batch call. Immutable after
// creation except through its child Requests.
type BatchRequest struct {
	ID        int64
	CreatedAt time.Time
}

// Request is one call made against one URI.
type Request struct {
	ID             int64
	ServiceID      int64
	BatchRequestID *int64
	URI            string
	CreatedAt      time.Time
}

// Response is the stored raw vendor body for a Request, plus the success
// flag (`success=false ⇒ labels() = ∅`).
type Response struct {
	ID             int64
	RequestID      int64
	BenchmarkKeyID *int64
	CreatedAt      time.Time
	Body           []byte // nullable: nil when the provider produced no body at all
	Success        bool
}

// vendorLabelPayload is the shape each provider adapter normalizes its
// response into before persisting (see internal/provider).
type vendorLabelPayload struct {
	Labels map[string]float64 `json:"labels"`
}

// Labels decodes the stored body into a lowercased label→confidence map.
// A failed Response always decodes to the empty set.
func (r *Response) Labels() map[string]float64 {
	if !r.Success || len(r.Body) == 0 {
		return map[string]float64{}
	}

	var payload vendorLabelPayload
	if err := json.Unmarshal(r.Body, &payload); err != nil {
		return map[string]float64{}
	}

	out := make(map[string]float64, len(payload.Labels))

	for label, confidence := range payload.Labels {
		out[strings.ToLower(label)] = confidence
	}

	return out
}

// EncodeLabels is the inverse of Labels, used by provider adapters and
// tests to build a Response.Body.
func EncodeLabels(labels map[string]float64) []byte {
	lowered := make(map[string]float64, len(labels))
	for k, v := range labels {
		lowered[strings.ToLower(k)] = v
	}

	body, _ := json.Marshal(vendorLabelPayload{Labels: lowered})

	return body
}

// ServiceErrorBody is the body shape mandates for provider
// failures: `{service_error: "<class> - <message>"}`.
type ServiceErrorBody struct {
	ServiceError string `json:"service_error"`
}

// BenchmarkKey is the reference point minted from a completed benchmark
// batch.
type BenchmarkKey struct {
	ID               int64
	ServiceID        int64
	BatchRequestID   int64
	SeverityID       int64
	CreatedAt        time.Time
	Expired          bool
	DeltaLabels      int
	DeltaConfidence  float64
	MaxLabels        int
	MinConfidence    float64
	ExpectedLabels   []string // lowercased, ordered
}

// Expire marks the key as expired. Once true this never resets.
func (k *BenchmarkKey) Expire() {
	k.Expired = true
}
