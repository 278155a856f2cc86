package pageproc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectSignalsChunkRuntime(t *testing.T) {
	signals := detectSignals(`<html><script>webpackChunkapp=window.webpackChunkapp||[]</script></html>`)
	assert.True(t, signals[signalChunkRuntime])
	assert.True(t, needsBrowser(signals))
}

func TestDetectSignalsIgnoresScriptSrcImport(t *testing.T) {
	signals := detectSignals(`<html><script src="/bundle.js"></script></html>`)
	assert.False(t, signals[signalDynamicImport])
	assert.False(t, needsBrowser(signals))
}

func TestDetectSignalsInlineDynamicImport(t *testing.T) {
	signals := detectSignals(`<html><script>if (x) { import('./mod.js') }</script></html>`)
	assert.True(t, signals[signalDynamicImport])
	assert.True(t, needsBrowser(signals))
}

func TestDetectSignalsLoneCodeIslandStaysStatic(t *testing.T) {
	signals := detectSignals(`<html><body><code-island data-loader="{}"></code-island></body></html>`)
	assert.True(t, signals[signalCodeIsland])
	assert.False(t, needsBrowser(signals))
}

func TestDetectSignalsCodeIslandPlusOtherGoesToBrowser(t *testing.T) {
	signals := detectSignals(`<html><body><code-island></code-island><script>__webpack_require__(1)</script></body></html>`)
	assert.True(t, signals[signalCodeIsland])
	assert.True(t, signals[signalWebpackRequire])
	assert.True(t, needsBrowser(signals))
}

func TestDetectSignalsLazyMedia(t *testing.T) {
	signals := detectSignals(`<img data-src="/a.png">`)
	assert.True(t, signals[signalLazyMedia])
	assert.True(t, needsBrowser(signals))
}
