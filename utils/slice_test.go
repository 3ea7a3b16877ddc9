package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUniqueUint(t *testing.T) {
	require.Equal(t, []uint{3, 1, 2}, UniqueUint([]uint{3, 1, 3, 2, 1}))
	require.Equal(t, []uint{7}, UniqueUint([]uint{7, 7, 7}))
	require.Empty(t, UniqueUint(nil))
}
