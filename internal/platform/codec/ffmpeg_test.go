package codec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNeedsNormalizing(t *testing.T) {
	assert.False(t, NeedsNormalizing(".mp3"))
	assert.False(t, NeedsNormalizing(".wav"))
	assert.True(t, NeedsNormalizing(".m4a"))
	assert.True(t, NeedsNormalizing(".webm"))
}

func TestNormalizeMissingBinary(t *testing.T) {
	f := NewFFmpeg("/nonexistent/ffmpeg-binary")

	_, err := f.Normalize(context.Background(), []byte("data"), ".aac")

	assert.ErrorContains(t, err, "ffmpeg failed")
}
