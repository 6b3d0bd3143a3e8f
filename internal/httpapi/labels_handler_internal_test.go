package httpapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lerian-labs/icvsb-gateway/internal/brc"
	"github.com/lerian-labs/icvsb-gateway/internal/model"
)

// Two results whose only difference is the volatile ID/CreatedAt stamped on
// every provider call must serialize identically, or GET /labels's 304 check
// would never fire for two genuinely byte-identical responses.
func TestToCacheableLabelsResult_IgnoresVolatileResponseFields(t *testing.T) {
	labels := map[string]float64{"cat": 0.9}

	first := brc.Result{
		Labels: labels,
		Response: &model.Response{
			ID:      1,
			Success: true,
			Body:    model.EncodeLabels(labels),
		},
	}

	second := brc.Result{
		Labels: labels,
		Response: &model.Response{
			ID:      2,
			Success: true,
			Body:    model.EncodeLabels(labels),
		},
	}

	firstBytes, err := json.Marshal(toCacheableLabelsResult(first))
	assert.NoError(t, err)

	secondBytes, err := json.Marshal(toCacheableLabelsResult(second))
	assert.NoError(t, err)

	assert.Equal(t, firstBytes, secondBytes)
}

func TestToCacheableLabelsResult_DiffersOnSuccess(t *testing.T) {
	labels := map[string]float64{"cat": 0.9}

	success := brc.Result{Labels: labels, Response: &model.Response{ID: 1, Success: true, Body: []byte(`{}`)}}
	failure := brc.Result{Labels: labels, Response: &model.Response{ID: 1, Success: false, Body: []byte(`{}`)}}

	successBytes, _ := json.Marshal(toCacheableLabelsResult(success))
	failureBytes, _ := json.Marshal(toCacheableLabelsResult(failure))

	assert.NotEqual(t, successBytes, failureBytes)
}

func TestToCacheableLabelsResult_NilResponse(t *testing.T) {
	out := toCacheableLabelsResult(brc.Result{Labels: map[string]float64{"cat": 0.9}})

	assert.Nil(t, out.Response)
	assert.Equal(t, map[string]float64{"cat": 0.9}, out.Labels)
}
