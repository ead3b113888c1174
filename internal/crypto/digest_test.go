package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestSignVerify(t *testing.T) {
	digest := Sum([]byte("test payload"))
	priv, pub, err := KeyPairFromSeed(bytes.Repeat([]byte{0x01}, 32))
	require.NoError(t, err)

	sig := digest.Sign(priv)
	assert.True(t, digest.Verify(pub, sig))
	assert.False(t, Sum([]byte("other")).Verify(pub, sig))
	assert.False(t, digest.Verify(pub[:5], sig))
}

func TestParseDigest(t *testing.T) {
	d := Sum([]byte("body"))
	assert.Equal(t, d.String(), DigestWithPrefix([]byte("body")))

	got, err := ParseDigest(d.String())
	require.NoError(t, err)
	assert.Equal(t, d, got)

	for _, bad := range []string{"", "md5:abcd", "sha256:zz", "sha256:abcd"} {
		_, err := ParseDigest(bad)
		assert.Error(t, err, bad)
	}
}
