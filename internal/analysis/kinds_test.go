package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequence(t *testing.T) {
	assert.Equal(t, []Kind{
		KindPerformance, KindMonitor, KindSSL, KindDNS,
		KindSitemap, KindAPI, KindLinks, KindTypography,
	}, Sequence)

	for i, kind := range Sequence {
		assert.Equal(t, i, kind.Index())
		assert.True(t, kind.Valid())
		assert.NotEmpty(t, Names[kind])
		_, ok := Endpoints[kind]
		assert.True(t, ok, "endpoint for %s", kind)
	}
	assert.Len(t, Names, len(Sequence))
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" SSL ")
	require.NoError(t, err)
	assert.Equal(t, KindSSL, k)

	_, err = ParseKind("whois")
	assert.Error(t, err)
	assert.Equal(t, -1, Kind("whois").Index())
	assert.Equal(t, "whois", Kind("whois").DisplayName())
}
