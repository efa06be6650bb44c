package faceindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVector_EncodeDecodeRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 3.1415927, 0}

	decoded, err := DecodeVector(EncodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)
}

func TestDecodeVector_RejectsBadBlobs(t *testing.T) {
	_, err := DecodeVector(nil)
	assert.Error(t, err)

	_, err = DecodeVector([]byte{1, 2, 3})
	assert.Error(t, err)

	_, err = DecodeVector([]byte{1, 2, 3, 4, 5})
	assert.Error(t, err)
}

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0.0, CosineDistance([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 1.0, CosineDistance([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, 2.0, CosineDistance([]float32{1, 0}, []float32{-1, 0}), 1e-9)
}

func TestCosineDistance_DegenerateInputs(t *testing.T) {
	// Mismatched lengths, empty and zero vectors all map to the maximum
	// distance so they can never be mistaken for a match.
	assert.Equal(t, 2.0, CosineDistance([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Equal(t, 2.0, CosineDistance(nil, nil))
	assert.Equal(t, 2.0, CosineDistance([]float32{0, 0}, []float32{1, 0}))
}
