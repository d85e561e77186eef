package regexp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchURL(t *testing.T) {
	assert.True(t, IsMatchURL("http://localhost:9000"))
	assert.True(t, IsMatchURL("https://analytics.example.com/v1/events"))
	assert.False(t, IsMatchURL("not-a-url"))
	assert.False(t, IsMatchURL("ftp://example.com"))
}

func TestIsMatchEmail(t *testing.T) {
	assert.True(t, IsMatchEmail("dev@example.com"))
	assert.False(t, IsMatchEmail("dev@"))
}

func TestIsMatchInvalidPattern(t *testing.T) {
	assert.False(t, IsMatch("([", "anything"))
}

func TestCompileCache(t *testing.T) {
	re1, err := compile(PatternURL)
	assert.NoError(t, err)
	re2, err := compile(PatternURL)
	assert.NoError(t, err)
	assert.Same(t, re1, re2)
}
