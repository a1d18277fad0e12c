package transcription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMixArgs(t *testing.T) {
	args, err := mixArgs([]string{"a.ogg", "b.ogg", "c.ogg"}, "out.mp3")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", "a.ogg", "-i", "b.ogg", "-i", "c.ogg",
		"-filter_complex", "[0:a][1:a][2:a]amix=inputs=3:duration=longest[aud]",
		"-map", "[aud]",
		"-c:a", "libmp3lame",
		"out.mp3",
	}, args)
}

func TestMixArgsRequiresInputs(t *testing.T) {
	_, err := mixArgs(nil, "out.mp3")
	require.Error(t, err)
}
