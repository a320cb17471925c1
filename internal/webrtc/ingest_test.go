package webrtc

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goodzwork-checkin/internal/camera"
	"goodzwork-checkin/models"
)

type fakeDecoder struct {
	calls int
	err   error
}

func (d *fakeDecoder) Decode(frame []byte) (image.Image, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return image.NewRGBA(image.Rect(0, 0, 64, 48)), nil
}

func newTestIngest(t *testing.T) (*Ingest, *fakeDecoder) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	in := NewIngest(models.WebRTCConfig{}, logger)
	dec := &fakeDecoder{}
	in.decoder = dec
	return in, dec
}

func TestNewIngestFillsDefaults(t *testing.T) {
	logger, _ := test.NewNullLogger()
	in := NewIngest(models.WebRTCConfig{MaxDecodeWidth: 320}, logger)

	assert.Equal(t, time.Second, in.cfg.PLIInterval)
	assert.Equal(t, uint16(128), in.cfg.SampleBufferMax)
	assert.Equal(t, "ffmpeg", in.cfg.FFmpegPath)
	assert.Equal(t, 320, in.decoder.(*ffmpegDecoder).maxWidth)
}

func TestReadBeforeFirstKeyframe(t *testing.T) {
	in, _ := newTestIngest(t)
	_, err := in.Read()
	assert.ErrorIs(t, err, camera.ErrNoFrame)
}

func TestHandleFrameKeepsLatestKeyframe(t *testing.T) {
	in, dec := newTestIngest(t)

	delta := append([]byte(nil), keyframe...)
	delta[0] |= 0x1
	in.handleFrame(delta)
	assert.Equal(t, 0, dec.calls)

	in.handleFrame(keyframe)
	in.handleFrame(keyframe)
	assert.Equal(t, 2, dec.calls)
	assert.Equal(t, 2, in.Keyframes())

	img, err := in.Read()
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
}

func TestHandleFrameDecodeError(t *testing.T) {
	in, dec := newTestIngest(t)
	dec.err = errors.New("ffmpeg missing")

	in.handleFrame(keyframe)
	_, err := in.Read()
	assert.ErrorIs(t, err, camera.ErrNoFrame)
	assert.Equal(t, 0, in.Keyframes())
}

func TestCloseIsIdempotent(t *testing.T) {
	in, _ := newTestIngest(t)
	in.handleFrame(keyframe)

	require.NoError(t, in.Close())
	require.NoError(t, in.Close())

	_, err := in.Read()
	assert.ErrorIs(t, err, camera.ErrClosed)

	_, err = in.HandleOffer(context.Background(), "v=0")
	assert.ErrorIs(t, err, camera.ErrClosed)
}

func TestHandleOfferRejectsGarbage(t *testing.T) {
	in, _ := newTestIngest(t)
	defer in.Close()

	_, err := in.HandleOffer(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidOffer)

	_, err = in.HandleOffer(context.Background(), "not an sdp")
	assert.ErrorIs(t, err, ErrInvalidOffer)
	assert.False(t, in.Connected())
}

func TestHandleOfferAnswersBrowserPublisher(t *testing.T) {
	in, _ := newTestIngest(t)
	defer in.Close()

	publisher, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer publisher.Close()

	_, err = publisher.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendonly})
	require.NoError(t, err)

	offer, err := publisher.CreateOffer(nil)
	require.NoError(t, err)
	gathered := webrtc.GatheringCompletePromise(publisher)
	require.NoError(t, publisher.SetLocalDescription(offer))
	<-gathered

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	answer, err := in.HandleOffer(ctx, publisher.LocalDescription().SDP)
	require.NoError(t, err)
	assert.True(t, in.Connected())
	assert.Contains(t, answer, "VP8/90000")
	assert.Contains(t, answer, "b=AS:2500")

	require.NoError(t, publisher.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}))
}
