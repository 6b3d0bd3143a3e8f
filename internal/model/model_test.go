package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lerian-labs/icvsb-gateway/internal/model"
)

func TestResponseLabels_LowercasesKeys(t *testing.T) {
	resp := &model.Response{Success: true, Body: model.EncodeLabels(map[string]float64{"Cat": 0.9, "DOG": 0.5})}

	labels := resp.Labels()

	assert.Equal(t, map[string]float64{"cat": 0.9, "dog": 0.5}, labels)
}

func TestResponseLabels_FailedResponseIsEmpty(t *testing.T) {
	resp := &model.Response{Success: false, Body: model.EncodeLabels(map[string]float64{"cat": 0.9})}

	assert.Empty(t, resp.Labels())
}

func TestResponseLabels_EmptyBodyIsEmpty(t *testing.T) {
	resp := &model.Response{Success: true}

	assert.Empty(t, resp.Labels())
}

func TestValidServiceName(t *testing.T) {
	assert.True(t, model.ValidServiceName("google"))
	assert.True(t, model.ValidServiceName("amazon"))
	assert.True(t, model.ValidServiceName("azure"))
	assert.False(t, model.ValidServiceName("openai"))
}

func TestValidSeverityName(t *testing.T) {
	assert.True(t, model.ValidSeverityName("exception"))
	assert.True(t, model.ValidSeverityName("none"))
	assert.False(t, model.ValidSeverityName("critical"))
}

func TestBenchmarkKeyExpireSetsExpired(t *testing.T) {
	key := &model.BenchmarkKey{}
	key.Expire()
	assert.True(t, key.Expired)
}
