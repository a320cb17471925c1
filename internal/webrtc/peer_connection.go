package webrtc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

// ============================================================
// PEER CONNECTION CREATION
// ============================================================

func (in *Ingest) createPeerConnection() (*webrtc.PeerConnection, error) {
	mediaEngine := &webrtc.MediaEngine{}

	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
			RTCPFeedback: []webrtc.RTCPFeedback{
				{Type: "goog-remb"},
				{Type: "ccm", Parameter: "fir"},
				{Type: "nack"},
				{Type: "nack", Parameter: "pli"},
			},
		},
		PayloadType: 96,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("failed to register VP8: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))

	return api.NewPeerConnection(webrtc.Configuration{
		ICEServers: iceServers(in.cfg.ICEServers),
	})
}

func iceServers(urls []string) []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	return servers
}

// ============================================================
// PEER CONNECTION HANDLERS
// ============================================================

func (in *Ingest) setupPeerConnectionHandlers(ctx context.Context, pc *webrtc.PeerConnection) {
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		in.log.Infof("🔗 Connection: %s", state.String())
		switch state {
		case webrtc.PeerConnectionStateConnected:
			in.log.Info("🎉 Camera stream connected")
		case webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateFailed:
			in.log.Warnf("🔴 Connection closed/failed: %s", state.String())
			in.dropPeer(pc)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		in.log.Infof("🎬 Track: %s (Codec: %s)", track.Kind().String(), track.Codec().MimeType)

		if track.Kind() != webrtc.RTPCodecTypeVideo || !strings.EqualFold(track.Codec().MimeType, webrtc.MimeTypeVP8) {
			return
		}

		ssrc := uint32(track.SSRC())

		go func() {
			for i := 0; i < 3; i++ {
				if err := pc.WriteRTCP([]rtcp.Packet{
					&rtcp.PictureLossIndication{MediaSSRC: ssrc},
				}); err == nil {
					in.log.Debug("⚡ Immediate PLI sent (forcing IDR)")
				}
				time.Sleep(100 * time.Millisecond)
			}
		}()

		go in.startPLISender(ctx, pc, ssrc)
		go in.readTrack(ctx, track)
	})
}

// ============================================================
// PLI SENDER
// ============================================================

// startPLISender keeps asking for keyframes; only keyframes are decoded.
func (in *Ingest) startPLISender(ctx context.Context, pc *webrtc.PeerConnection, ssrc uint32) {
	ticker := time.NewTicker(in.cfg.PLIInterval)
	defer ticker.Stop()

	consecutiveErrors := 0
	const maxErrors = 3

	defer in.log.Debug("🛑 PLI sender stopped")

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			state := pc.ConnectionState()
			if state == webrtc.PeerConnectionStateClosed ||
				state == webrtc.PeerConnectionStateFailed {
				return
			}

			if err := pc.WriteRTCP([]rtcp.Packet{
				&rtcp.PictureLossIndication{MediaSSRC: ssrc},
			}); err != nil {
				consecutiveErrors++
				if consecutiveErrors >= maxErrors {
					in.log.Warnf("⚠️  PLI stopping (errors: %d)", consecutiveErrors)
					return
				}
			} else {
				consecutiveErrors = 0
			}
		}
	}
}
