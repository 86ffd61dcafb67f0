package hashutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFingerprint_MapOrderIndependent(t *testing.T) {
	a := map[string]any{"query": "rain", "maxResults": 3, "safeSearch": true}
	b := map[string]any{"safeSearch": true, "query": "rain", "maxResults": 3}

	fa, err := Fingerprint(a)
	require.NoError(t, err)
	fb, err := Fingerprint(b)
	require.NoError(t, err)
	require.Equal(t, fa, fb)
	require.Len(t, fa, 64)

	fc, err := Fingerprint(map[string]any{"query": "snow"})
	require.NoError(t, err)
	require.NotEqual(t, fa, fc)
}

func TestETag_UnencodableValue(t *testing.T) {
	require.Empty(t, ETag(zap.NewNop(), "test", map[string]any{"ch": make(chan int)}))
	require.NotEmpty(t, ETag(nil, "test", []string{"a"}))
}
