// Package benchmarkkey implements the equivalence relation between two
// benchmark keys, and between a key and a response: valid_against(other_key)
// and valid_against(response), in the exact eight (nine, counting the
// response-only check) reason short-circuit order. This package is pure: it
// never touches the store or network, operating only on the model types and
// the Batch view assembled by its caller (internal/brc).
package benchmarkkey

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/lerian-labs/icvsb-gateway/internal/apperr"
	"github.com/lerian-labs/icvsb-gateway/internal/model"
)

// Batch is the minimal view over a BenchmarkKey's minting batch that the
// equivalence checks need: the dataset URIs and, for each, the Response
// recorded during that benchmark run.
type Batch struct {
	URIs             []string
	ResponseByURI    map[string]*model.Response
	AllSuccessful    bool
}

// Key pairs a persisted model.BenchmarkKey with the Batch it was minted
// from, plus the resolved Severity name the key was minted under.
type Key struct {
	Model    *model.BenchmarkKey
	Batch    Batch
	Severity model.SeverityName
}

// ConfidenceDelta records one label's confidence drift beyond tolerance,
// the "details" attaches to CONFIDENCE_DELTA_MISMATCH.
type ConfidenceDelta struct {
	Label string  `json:"label"`
	Delta float64 `json:"delta"`
}

// ValidAgainstKey implements valid_against(k2) Checks
// run in the specified order; the first failure short-circuits and
// determines the reported reason.
func (k *Key) ValidAgainstKey(other *Key) (bool, error) {
	if k.Model.ServiceID != other.Model.ServiceID {
		return false, apperr.KeyValidityError{
			Reason:  apperr.ReasonServiceMismatch,
			Message: "keys reference different services",
		}
	}

	if d := symdiffStrings(k.Batch.URIs, other.Batch.URIs); len(d) > 0 {
		return false, apperr.KeyValidityError{
			Reason:  apperr.ReasonDatasetMismatch,
			Message: "benchmark datasets differ",
			Details: d,
		}
	}

	if !k.Batch.AllSuccessful || !other.Batch.AllSuccessful {
		return false, apperr.KeyValidityError{
			Reason:  apperr.ReasonSuccessMismatch,
			Message: "one or both benchmark batches contain a failed response",
		}
	}

	if k.Model.MaxLabels != other.Model.MaxLabels {
		return false, apperr.KeyValidityError{
			Reason:  apperr.ReasonMaxLabelsMismatch,
			Message: "max_labels differs between keys",
		}
	}

	if k.Model.MinConfidence != other.Model.MinConfidence {
		return false, apperr.KeyValidityError{
			Reason:  apperr.ReasonMinConfidenceMismatch,
			Message: "min_confidence differs between keys",
		}
	}

	if len(k.Batch.ResponseByURI) != len(other.Batch.ResponseByURI) {
		return false, apperr.KeyValidityError{
			Reason:  apperr.ReasonResponseLengthMismatch,
			Message: "response counts differ between keys",
		}
	}

	for _, uri := range k.Batch.URIs {
		selfResp, ok1 := k.Batch.ResponseByURI[uri]
		otherResp, ok2 := other.Batch.ResponseByURI[uri]

		if !ok1 || !ok2 {
			continue // already reported by DATASET_MISMATCH above
		}

		selfLabels := selfResp.Labels()
		otherLabels := otherResp.Labels()

		if d := symdiffStrings(labelKeys(selfLabels), labelKeys(otherLabels)); len(d) > k.Model.DeltaLabels {
			return false, apperr.KeyValidityError{
				Reason:  apperr.ReasonLabelDeltaMismatch,
				Message: "label set drifted beyond delta_labels",
				Details: d,
			}
		}

		if deltas := confidenceDeltas(selfLabels, otherLabels, k.Model.DeltaConfidence); len(deltas) > 0 {
			return false, apperr.KeyValidityError{
				Reason:  apperr.ReasonConfidenceDeltaMismatch,
				Message: "label confidence drifted beyond delta_confidence",
				Details: deltas,
			}
		}
	}

	return true, nil
}

// ValidAgainstResponse implements valid_against(response): every label in
// expected_labels must be a key of response.Labels().
func (k *Key) ValidAgainstResponse(resp *model.Response) (bool, error) {
	labels := resp.Labels()

	var missing []string

	for _, expected := range k.Model.ExpectedLabels {
		if _, ok := labels[expected]; !ok {
			missing = append(missing, expected)
		}
	}

	if len(missing) > 0 {
		return false, apperr.KeyValidityError{
			Reason:  apperr.ReasonExpectedLabelsMismatch,
			Message: "response is missing expected labels",
			Details: missing,
		}
	}

	return true, nil
}

func labelKeys(labels map[string]float64) []string {
	out := make([]string, 0, len(labels))
	for k := range labels {
		out = append(out, k)
	}

	return out
}

// symdiffStrings returns the symmetric difference (A ∪ B) \ (A ∩ B) of two
// string sets, sorted for deterministic output.
func symdiffStrings(a, b []string) []string {
	inA := make(map[string]bool, len(a))
	for _, s := range a {
		inA[s] = true
	}

	inB := make(map[string]bool, len(b))
	for _, s := range b {
		inB[s] = true
	}

	var out []string

	for s := range inA {
		if !inB[s] {
			out = append(out, s)
		}
	}

	for s := range inB {
		if !inA[s] {
			out = append(out, s)
		}
	}

	sort.Strings(out)

	return out
}

// confidenceDeltas collects every label present in both sides whose
// confidence differs by more than tolerance. Labels present on only one
// side are ignored here; they are already accounted for by the
// label-delta check.
func confidenceDeltas(self, other map[string]float64, tolerance float64) []ConfidenceDelta {
	tol := decimal.NewFromFloat(tolerance)

	var out []ConfidenceDelta

	labels := make([]string, 0, len(self))
	for label := range self {
		labels = append(labels, label)
	}

	sort.Strings(labels)

	for _, label := range labels {
		otherConf, ok := other[label]
		if !ok {
			continue
		}

		selfD := decimal.NewFromFloat(self[label])
		otherD := decimal.NewFromFloat(otherConf)
		delta := selfD.Sub(otherD).Abs()

		if delta.GreaterThan(tol) {
			d, _ := delta.Float64()
			out = append(out, ConfidenceDelta{Label: label, Delta: d})
		}
	}

	return out
}
