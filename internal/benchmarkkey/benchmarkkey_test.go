package benchmarkkey_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lerian-labs/icvsb-gateway/internal/apperr"
	"github.com/lerian-labs/icvsb-gateway/internal/benchmarkkey"
	"github.com/lerian-labs/icvsb-gateway/internal/model"
)

func response(labels map[string]float64, success bool) *model.Response {
	return &model.Response{Success: success, Body: model.EncodeLabels(labels)}
}

func baseKey(serviceID int64, uris []string, responses map[string]*model.Response) *benchmarkkey.Key {
	allSuccessful := true

	for _, r := range responses {
		if !r.Success {
			allSuccessful = false
		}
	}

	return &benchmarkkey.Key{
		Model: &model.BenchmarkKey{
			ServiceID:       serviceID,
			MaxLabels:       100,
			MinConfidence:   0.5,
			DeltaLabels:     1,
			DeltaConfidence: 0.05,
		},
		Batch: benchmarkkey.Batch{
			URIs:          uris,
			ResponseByURI: responses,
			AllSuccessful: allSuccessful,
		},
	}
}

func TestValidAgainstKey_ServiceMismatch(t *testing.T) {
	uris := []string{"https://example.com/a.jpg"}
	responses := map[string]*model.Response{uris[0]: response(map[string]float64{"cat": 0.9}, true)}

	k1 := baseKey(1, uris, responses)
	k2 := baseKey(2, uris, responses)

	ok, err := k1.ValidAgainstKey(k2)
	assert.False(t, ok)

	var kve apperr.KeyValidityError

	require.ErrorAs(t, err, &kve)
	assert.Equal(t, apperr.ReasonServiceMismatch, kve.Reason)
}

func TestValidAgainstKey_DatasetMismatch(t *testing.T) {
	responses1 := map[string]*model.Response{"https://example.com/a.jpg": response(map[string]float64{"cat": 0.9}, true)}
	responses2 := map[string]*model.Response{"https://example.com/b.jpg": response(map[string]float64{"cat": 0.9}, true)}

	k1 := baseKey(1, []string{"https://example.com/a.jpg"}, responses1)
	k2 := baseKey(1, []string{"https://example.com/b.jpg"}, responses2)

	ok, err := k1.ValidAgainstKey(k2)
	assert.False(t, ok)

	var kve apperr.KeyValidityError

	require.ErrorAs(t, err, &kve)
	assert.Equal(t, apperr.ReasonDatasetMismatch, kve.Reason)
}

func TestValidAgainstKey_SuccessMismatch(t *testing.T) {
	uris := []string{"https://example.com/a.jpg"}
	responses1 := map[string]*model.Response{uris[0]: response(map[string]float64{"cat": 0.9}, true)}
	responses2 := map[string]*model.Response{uris[0]: response(nil, false)}

	k1 := baseKey(1, uris, responses1)
	k2 := baseKey(1, uris, responses2)

	ok, err := k1.ValidAgainstKey(k2)
	assert.False(t, ok)

	var kve apperr.KeyValidityError

	require.ErrorAs(t, err, &kve)
	assert.Equal(t, apperr.ReasonSuccessMismatch, kve.Reason)
}

func TestValidAgainstKey_MaxLabelsMismatch(t *testing.T) {
	uris := []string{"https://example.com/a.jpg"}
	responses := map[string]*model.Response{uris[0]: response(map[string]float64{"cat": 0.9}, true)}

	k1 := baseKey(1, uris, responses)
	k2 := baseKey(1, uris, responses)
	k2.Model.MaxLabels = 5

	ok, err := k1.ValidAgainstKey(k2)
	assert.False(t, ok)

	var kve apperr.KeyValidityError

	require.ErrorAs(t, err, &kve)
	assert.Equal(t, apperr.ReasonMaxLabelsMismatch, kve.Reason)
}

func TestValidAgainstKey_MinConfidenceMismatch(t *testing.T) {
	uris := []string{"https://example.com/a.jpg"}
	responses := map[string]*model.Response{uris[0]: response(map[string]float64{"cat": 0.9}, true)}

	k1 := baseKey(1, uris, responses)
	k2 := baseKey(1, uris, responses)
	k2.Model.MinConfidence = 0.8

	ok, err := k1.ValidAgainstKey(k2)
	assert.False(t, ok)

	var kve apperr.KeyValidityError

	require.ErrorAs(t, err, &kve)
	assert.Equal(t, apperr.ReasonMinConfidenceMismatch, kve.Reason)
}

func TestValidAgainstKey_ResponseLengthMismatch(t *testing.T) {
	uris := []string{"https://example.com/a.jpg", "https://example.com/b.jpg"}
	responses1 := map[string]*model.Response{
		uris[0]: response(map[string]float64{"cat": 0.9}, true),
		uris[1]: response(map[string]float64{"dog": 0.9}, true),
	}
	responses2 := map[string]*model.Response{
		uris[0]: response(map[string]float64{"cat": 0.9}, true),
	}

	k1 := baseKey(1, uris, responses1)
	k2 := baseKey(1, uris, responses2)

	ok, err := k1.ValidAgainstKey(k2)
	assert.False(t, ok)

	var kve apperr.KeyValidityError

	require.ErrorAs(t, err, &kve)
	assert.Equal(t, apperr.ReasonResponseLengthMismatch, kve.Reason)
}

func TestValidAgainstKey_LabelDeltaMismatch(t *testing.T) {
	uris := []string{"https://example.com/a.jpg"}
	responses1 := map[string]*model.Response{uris[0]: response(map[string]float64{"cat": 0.9}, true)}
	responses2 := map[string]*model.Response{uris[0]: response(map[string]float64{"cat": 0.9, "dog": 0.7, "bird": 0.6}, true)}

	k1 := baseKey(1, uris, responses1)
	k1.Model.DeltaLabels = 1
	k2 := baseKey(1, uris, responses2)

	ok, err := k1.ValidAgainstKey(k2)
	assert.False(t, ok)

	var kve apperr.KeyValidityError

	require.ErrorAs(t, err, &kve)
	assert.Equal(t, apperr.ReasonLabelDeltaMismatch, kve.Reason)
}

func TestValidAgainstKey_ConfidenceDeltaMismatch(t *testing.T) {
	uris := []string{"https://example.com/a.jpg"}
	responses1 := map[string]*model.Response{uris[0]: response(map[string]float64{"cat": 0.9}, true)}
	responses2 := map[string]*model.Response{uris[0]: response(map[string]float64{"cat": 0.5}, true)}

	k1 := baseKey(1, uris, responses1)
	k1.Model.DeltaConfidence = 0.05
	k2 := baseKey(1, uris, responses2)

	ok, err := k1.ValidAgainstKey(k2)
	assert.False(t, ok)

	var kve apperr.KeyValidityError

	require.ErrorAs(t, err, &kve)
	assert.Equal(t, apperr.ReasonConfidenceDeltaMismatch, kve.Reason)

	deltas, ok := kve.Details.([]benchmarkkey.ConfidenceDelta)
	require.True(t, ok)
	require.Len(t, deltas, 1)
	assert.Equal(t, "cat", deltas[0].Label)
	assert.InDelta(t, 0.4, deltas[0].Delta, 1e-9)
}

func TestValidAgainstKey_WithinTolerance(t *testing.T) {
	uris := []string{"https://example.com/a.jpg"}
	responses1 := map[string]*model.Response{uris[0]: response(map[string]float64{"cat": 0.90}, true)}
	responses2 := map[string]*model.Response{uris[0]: response(map[string]float64{"cat": 0.91}, true)}

	k1 := baseKey(1, uris, responses1)
	k1.Model.DeltaConfidence = 0.05
	k2 := baseKey(1, uris, responses2)

	ok, err := k1.ValidAgainstKey(k2)
	assert.True(t, ok)
	assert.NoError(t, err)
}

func TestValidAgainstResponse_ExpectedLabelsMismatch(t *testing.T) {
	key := &benchmarkkey.Key{Model: &model.BenchmarkKey{ExpectedLabels: []string{"cat", "dog"}}}
	resp := response(map[string]float64{"cat": 0.9}, true)

	ok, err := key.ValidAgainstResponse(resp)
	assert.False(t, ok)

	var kve apperr.KeyValidityError

	require.ErrorAs(t, err, &kve)
	assert.Equal(t, apperr.ReasonExpectedLabelsMismatch, kve.Reason)
	assert.Equal(t, []string{"dog"}, kve.Details)
}

func TestValidAgainstResponse_AllExpectedPresent(t *testing.T) {
	key := &benchmarkkey.Key{Model: &model.BenchmarkKey{ExpectedLabels: []string{"cat"}}}
	resp := response(map[string]float64{"cat": 0.9, "dog": 0.2}, true)

	ok, err := key.ValidAgainstResponse(resp)
	assert.True(t, ok)
	assert.NoError(t, err)
}
