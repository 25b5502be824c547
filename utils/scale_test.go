package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClamp(t *testing.T) {
	t.Parallel()

	require.Equal(t, 5, Clamp(5, 0, 10))
	require.Equal(t, 0, Clamp(-3, 0, 10))
	require.Equal(t, 10, Clamp(42, 0, 10))

	// swapped bounds still clamp to the same interval
	require.Equal(t, 10, Clamp(42, 10, 0))

	require.Equal(t, 0.5, Clamp(0.5, 0.0, 1.0))
}

func TestLerp(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0.0, Lerp(0, 10, 0))
	require.Equal(t, 10.0, Lerp(0, 10, 1))
	require.Equal(t, 5.0, Lerp(0, 10, 0.5))
	require.Equal(t, 7.0, Lerp(10, 0, 0.3))
}
