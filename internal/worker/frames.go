package worker

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
)

// jpegSOI/jpegEOI are the JPEG Start/End-Of-Image markers. Ping Watch clips
// are MJPEG-in-WebM: each frame is an independently decodable JPEG picture
// concatenated in the container, so a byte-level scan for these markers
// stands in for a frame-count probe without requiring a full video-codec
// dependency.
var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// scanFrameRanges performs the sequential scan pass: it walks the
// container bytes once and records the byte range of every embedded JPEG
// picture.
func scanFrameRanges(data []byte) [][2]int {
	var ranges [][2]int
	pos := 0
	for {
		start := bytes.Index(data[pos:], jpegSOI)
		if start < 0 {
			break
		}
		start += pos
		end := bytes.Index(data[start+2:], jpegEOI)
		if end < 0 {
			break
		}
		end = start + 2 + end + 2
		ranges = append(ranges, [2]int{start, end})
		pos = end
	}
	return ranges
}

// framePositions picks the middle frame for N=1, otherwise N
// evenly-distributed positions at total*(i+1)/(N+1); the first and last
// frame are skipped only when total > N+1.
func framePositions(total, numFrames int) []int {
	if numFrames <= 1 {
		return []int{total / 2}
	}
	step := float64(total) / float64(numFrames+1)
	positions := make([]int, numFrames)
	for i := 0; i < numFrames; i++ {
		positions[i] = int(step * float64(i+1))
	}
	return positions
}

// ExtractFramesAsDataURIs decodes the clip to numFrames frames
// (sequential scan, then reopen and pick evenly-spaced
// positions; middle frame when numFrames==1), encode each as JPEG quality 85,
// and wrap as base64 data URIs. Returns an empty slice, never an error that
// aborts the caller, on any failure; extraction is best-effort.
func ExtractFramesAsDataURIs(videoBytes []byte, numFrames int) []string {
	if numFrames <= 0 {
		numFrames = 3
	}
	ranges := scanFrameRanges(videoBytes)
	total := len(ranges)
	if total <= 0 {
		slog.Warn("frame extraction: no decodable frames found in clip")
		return nil
	}

	positions := framePositions(total, numFrames)
	var out []string
	for _, pos := range positions {
		if pos < 0 || pos >= total {
			continue
		}
		r := ranges[pos]
		raw := videoBytes[r[0]:r[1]]
		img, _, err := image.Decode(bytes.NewReader(raw))
		if err != nil {
			slog.Warn("frame extraction: failed to decode frame", "position", pos, "error", err)
			continue
		}
		encoded, err := encodeJPEG(img, 85)
		if err != nil {
			slog.Warn("frame extraction: failed to encode frame", "position", pos, "error", err)
			continue
		}
		out = append(out, toDataURI("image/jpeg", encoded))
	}
	slog.Info("frame extraction complete", "total_frames", total, "extracted", len(out))
	return out
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func toDataURI(mime string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
}
