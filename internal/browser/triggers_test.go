package browser

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkHrefPatternMatchesChunkFiles(t *testing.T) {
	assert.True(t, chunkHrefPattern.MatchString("/static/js/12.chunk.8f3a9c.js"))
	assert.False(t, chunkHrefPattern.MatchString("/static/js/app.js"))
}

func TestInlineChunkPatternMatchesQuotedLiterals(t *testing.T) {
	src := `const a = "/static/js/vendor.chunk.1a2b3c.js"; const b = '/js/runtime.js';`
	matches := inlineChunkPattern.FindAllString(src, -1)
	assert.Len(t, matches, 2)
}

func TestInlineChunkPatternMatchesAChunkVariant(t *testing.T) {
	assert.True(t, inlineChunkPattern.MatchString(`"/static/js/5.achunk.deadbeef.js"`))
}

func TestAddResolvedResolvesRelativeRef(t *testing.T) {
	l := newAssetListener("https://example.com/page")
	base, err := url.Parse("https://example.com/page")
	require.NoError(t, err)

	addResolved(l, base, "/static/js/5.chunk.abc123.js")
	assets := l.assetsSnapshot()
	require.Len(t, assets, 1)
	assert.Equal(t, "https://example.com/static/js/5.chunk.abc123.js", assets[0].url)
}
