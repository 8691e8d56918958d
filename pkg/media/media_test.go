package media_test

import (
	"testing"

	"github.com/remindly/callcore/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntheticProvider_AudioCall(t *testing.T) {
	m, err := media.NewSyntheticProvider().AcquireMedia(media.CallTypeAudio)
	require.NoError(t, err)
	defer m.Close()

	assert.Len(t, m.Tracks(), 1)
	assert.True(t, m.AudioEnabled())
	assert.False(t, m.VideoEnabled())
}

func TestSyntheticProvider_VideoCall(t *testing.T) {
	m, err := media.NewSyntheticProvider().AcquireMedia(media.CallTypeVideo)
	require.NoError(t, err)
	defer m.Close()

	assert.Len(t, m.Tracks(), 2)
	assert.True(t, m.AudioEnabled())
	assert.True(t, m.VideoEnabled())
}

func TestLocalMedia_MuteToggles(t *testing.T) {
	m, err := media.NewSyntheticProvider().AcquireMedia(media.CallTypeVideo)
	require.NoError(t, err)
	defer m.Close()

	m.SetAudioEnabled(false)
	assert.False(t, m.AudioEnabled())
	m.SetAudioEnabled(true)
	assert.True(t, m.AudioEnabled())

	m.SetVideoEnabled(false)
	assert.False(t, m.VideoEnabled())
}

func TestLocalMedia_CloseIsIdempotent(t *testing.T) {
	m, err := media.NewSyntheticProvider().AcquireMedia(media.CallTypeAudio)
	require.NoError(t, err)

	m.Close()
	m.Close()
}

func TestCallType_Valid(t *testing.T) {
	assert.True(t, media.CallTypeAudio.Valid())
	assert.True(t, media.CallTypeVideo.Valid())
	assert.False(t, media.CallType("screenshare").Valid())
}
