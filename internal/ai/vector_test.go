package ai

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatVector(t *testing.T) {
	assert.Equal(t, "[1,-0.5,0.25]", FormatVector([]float32{1, -0.5, 0.25}))
	assert.Equal(t, "[]", FormatVector([]float32{}))
}

func TestParseVectorRoundTrip(t *testing.T) {
	in := []float32{0.1, -3.4028235e+38, 1e-45, 0, 123.456, float32(math.Pi)}
	out, err := ParseVector(FormatVector(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestParseVectorEmpty(t *testing.T) {
	out, err := ParseVector("[]")
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestParseVectorRejectsGarbage(t *testing.T) {
	_, err := ParseVector("1,2,3")
	assert.Error(t, err)
	_, err = ParseVector("[1,x]")
	assert.Error(t, err)
}
