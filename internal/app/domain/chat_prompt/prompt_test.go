package llmchat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("  best tapas?  ", "Barcelona")
	assert.Contains(t, p, "currently exploring Barcelona")
	assert.Contains(t, p, `{"locations":[`)
	assert.Contains(t, p, "I'll check the weather in <City>.")
	assert.Contains(t, p, "User: best tapas?")
	assert.NotContains(t, p, "best tapas?  ")

	noCity := BuildPrompt("hello", " ")
	assert.NotContains(t, noCity, "currently exploring")
	assert.Contains(t, noCity, "User: hello")
}

func TestDefaultGenerateConfig(t *testing.T) {
	cfg := defaultGenerateConfig()
	if assert.NotNil(t, cfg.Temperature) {
		assert.InDelta(t, 0.7, *cfg.Temperature, 1e-6)
	}
	assert.EqualValues(t, 2048, cfg.MaxOutputTokens)
}
