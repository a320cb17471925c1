package webrtc

import (
	"fmt"
	"strings"
)

// patchSDPForQuality adds a bandwidth line to the video section and a VP8
// fmtp line with bitrate hints for Chromium senders. The b= line goes ahead
// of the first attribute so the section keeps m, c, b, a order.
func patchSDPForQuality(sdp string, asKbps, minKbps, maxKbps int) string {
	lines := strings.Split(sdp, "\n")
	out := make([]string, 0, len(lines)+2)
	inVideo := false
	pendingAS := false
	insertedFmtp := false

	for _, line := range lines {
		trim := strings.TrimSpace(line)
		eol := ""
		if strings.HasSuffix(line, "\r") {
			eol = "\r"
		}

		if strings.HasPrefix(trim, "m=") {
			inVideo = strings.HasPrefix(trim, "m=video")
			pendingAS = inVideo && asKbps > 0
			insertedFmtp = false
			out = append(out, line)
			continue
		}

		if pendingAS && strings.HasPrefix(trim, "a=") {
			out = append(out, fmt.Sprintf("b=AS:%d", asKbps)+eol)
			pendingAS = false
		}
		out = append(out, line)

		if !inVideo || insertedFmtp || minKbps <= 0 || maxKbps <= 0 {
			continue
		}
		if strings.HasPrefix(trim, "a=rtpmap:") && strings.Contains(trim, "VP8/90000") {
			payload, _, _ := strings.Cut(strings.TrimPrefix(trim, "a=rtpmap:"), " ")
			if payload == "" {
				continue
			}
			out = append(out, fmt.Sprintf(
				"a=fmtp:%s x-google-min-bitrate=%d;x-google-max-bitrate=%d;x-google-start-bitrate=%d;max-fr=30;max-fs=3600",
				payload, minKbps, maxKbps, (minKbps+maxKbps)/2)+eol)
			insertedFmtp = true
		}
	}

	return strings.Join(out, "\n")
}
