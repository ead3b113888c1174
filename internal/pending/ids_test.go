package pending

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCodeDiscardsBiasedBytes(t *testing.T) {
	entropy := bytes.NewReader([]byte{
		252, 255, 0, 35, 36, 71, 251, 1,
		2, 3, 254, 253, 4, 5, 6, 7,
	})
	code, err := NewIDSource(entropy).NewCode()
	require.NoError(t, err)
	assert.Equal(t, "A9A99BCD", code)
}

func TestNewCodeStopsWhenEntropyRunsOut(t *testing.T) {
	_, err := NewIDSource(bytes.NewReader(bytes.Repeat([]byte{0xff}, 64))).NewCode()
	assert.Error(t, err)
}

func TestNewCodeAlphabet(t *testing.T) {
	ids := NewIDSource(nil)
	for i := 0; i < 50; i++ {
		code, err := ids.NewCode()
		require.NoError(t, err)
		require.Len(t, code, ApprovalCodeSize)
		for _, r := range code {
			assert.Contains(t, codeAlphabet, string(r))
		}
	}
}
