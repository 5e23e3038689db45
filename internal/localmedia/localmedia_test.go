package localmedia

import (
	"context"
	"testing"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntheticSource_AudioVideo(t *testing.T) {
	src := &SyntheticSource{}

	s, err := src.Acquire(context.Background(), Constraints{Audio: true, Video: true})
	require.NoError(t, err)
	require.Len(t, s.Tracks(), 2)
	assert.True(t, s.HasVideo())
	assert.Equal(t, KindAudio, s.Track(KindAudio).Kind())
	assert.Equal(t, "video", s.Track(KindVideo).Local().Kind().String())
	assert.Len(t, src.Streams(), 1)
}

func TestSyntheticSource_Errors(t *testing.T) {
	_, err := (&SyntheticSource{DenyVideo: true}).Acquire(context.Background(), Constraints{Audio: true, Video: true})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = (&SyntheticSource{MissingAudio: true}).Acquire(context.Background(), Constraints{Audio: true})
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	s, err := (&SyntheticSource{DenyVideo: true}).Acquire(context.Background(), Constraints{Audio: true})
	require.NoError(t, err)
	assert.False(t, s.HasVideo())

	_, err = (&SyntheticSource{}).Acquire(context.Background(), Constraints{})
	assert.ErrorIs(t, err, ErrNoTracks)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &SyntheticSource{}
	_, err = src.Acquire(ctx, Constraints{Audio: true})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, src.Requests(), 1)
}

func TestTrack_EnableAndStop(t *testing.T) {
	s, err := NewStream(Constraints{Audio: true})
	require.NoError(t, err)
	tr := s.Track(KindAudio)

	assert.True(t, tr.Enabled())
	require.NoError(t, tr.SetEnabled(false))
	assert.False(t, tr.Enabled())
	assert.NoError(t, tr.WriteSample(media.Sample{Data: []byte{1, 2, 3}, Duration: 20 * time.Millisecond}))

	s.Stop()
	s.Stop()
	assert.True(t, tr.Stopped())
	assert.False(t, tr.Enabled())
	assert.ErrorIs(t, tr.SetEnabled(true), ErrTrackStopped)
	assert.ErrorIs(t, tr.WriteSample(media.Sample{}), ErrTrackStopped)
}

func TestSyntheticSource_SendsUntilStopped(t *testing.T) {
	s, err := (&SyntheticSource{}).Acquire(context.Background(), Constraints{Audio: true, Video: true})
	require.NoError(t, err)

	for _, tr := range s.Tracks() {
		require.Eventually(t, func() bool { return tr.SamplesWritten() >= 2 },
			time.Second, 5*time.Millisecond, "%s track sent nothing", tr.Kind())
	}

	s.Stop()
	time.Sleep(50 * time.Millisecond)
	counts := map[Kind]int64{}
	for _, tr := range s.Tracks() {
		counts[tr.Kind()] = tr.SamplesWritten()
	}
	time.Sleep(100 * time.Millisecond)
	for _, tr := range s.Tracks() {
		assert.Equal(t, counts[tr.Kind()], tr.SamplesWritten(), "%s track kept sending", tr.Kind())
	}
}

func TestTrack_PumpExitsOnStop(t *testing.T) {
	s, err := NewStream(Constraints{Audio: true})
	require.NoError(t, err)
	tr := s.Track(KindAudio)

	exited := tr.pump(opusSilence, time.Millisecond)
	require.Eventually(t, func() bool { return tr.SamplesWritten() > 0 }, time.Second, time.Millisecond)

	tr.Stop()
	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("pump still running after Stop")
	}
}

func TestTrack_DisabledVideoSendsNothing(t *testing.T) {
	s, err := NewStream(Constraints{Video: true})
	require.NoError(t, err)
	tr := s.Track(KindVideo)
	require.NoError(t, tr.SetEnabled(false))

	require.NoError(t, tr.WriteSample(media.Sample{Data: vp8Keyframe, Duration: videoFrameInterval}))
	assert.Zero(t, tr.SamplesWritten())
}
