package llm

import (
	"bytes"
	"encoding/json"
	"log/slog"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// FrameParser decodes the upstream chunked stream into logical frames.
// Network reads do not align with frame boundaries, so bytes after the last
// delimiter stay buffered between calls to Feed.
type FrameParser struct {
	buf     []byte
	skipped int
}

// Feed appends a raw chunk to the running buffer and returns every frame that
// is now complete. Blank lines, comment lines, and lines without the data
// prefix are dropped silently.
func (p *FrameParser) Feed(chunk []byte) []Frame {
	p.buf = append(p.buf, chunk...)

	var frames []Frame
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			return frames
		}
		line := p.buf[:i]
		p.buf = p.buf[i+1:]

		if frame, ok := p.decodeLine(line); ok {
			frames = append(frames, frame)
		}
	}
}

// Skipped reports how many delimiter-aligned lines failed to decode.
func (p *FrameParser) Skipped() int { return p.skipped }

func (p *FrameParser) decodeLine(line []byte) (Frame, bool) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 || line[0] == ':' {
		return Frame{}, false
	}
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return Frame{}, false
	}

	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if string(payload) == doneSentinel {
		return Frame{Done: true}, true
	}

	var chunk Chunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		// The upstream does not guarantee per-line well-formedness; a bad
		// frame is dropped without aborting the session.
		p.skipped++
		slog.Debug("skipping undecodable stream frame", "error", err, "skipped", p.skipped)
		return Frame{}, false
	}
	return Frame{Chunk: chunk}, true
}
