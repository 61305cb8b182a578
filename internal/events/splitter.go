package events

import "strings"

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// ReasoningSplitter separates inline <think>...</think> reasoning from visible
// text in a stream of model deltas. Tags split across deltas are handled by
// holding back a possible tag prefix until the next Push or Flush.
type ReasoningSplitter struct {
	inThink bool
	pending string
}

// Push consumes one delta and returns the visible and reasoning text it completes.
func (s *ReasoningSplitter) Push(delta string) (text, reasoning string) {
	buf := s.pending + delta
	s.pending = ""

	var tb, rb strings.Builder
	for buf != "" {
		tag := thinkOpen
		if s.inThink {
			tag = thinkClose
		}

		if idx := strings.Index(buf, tag); idx >= 0 {
			s.write(&tb, &rb, buf[:idx])
			buf = buf[idx+len(tag):]
			s.inThink = !s.inThink
			continue
		}

		keep := partialTagSuffix(buf, tag)
		s.write(&tb, &rb, buf[:len(buf)-keep])
		s.pending = buf[len(buf)-keep:]
		break
	}
	return tb.String(), rb.String()
}

// Flush returns whatever was held back. Call it once the stream ends.
func (s *ReasoningSplitter) Flush() (text, reasoning string) {
	rest := s.pending
	s.pending = ""
	if s.inThink {
		return "", rest
	}
	return rest, ""
}

func (s *ReasoningSplitter) write(tb, rb *strings.Builder, chunk string) {
	if s.inThink {
		rb.WriteString(chunk)
	} else {
		tb.WriteString(chunk)
	}
}

// partialTagSuffix returns the length of the longest suffix of buf that is a
// proper prefix of tag.
func partialTagSuffix(buf, tag string) int {
	for n := min(len(tag)-1, len(buf)); n > 0; n-- {
		if strings.HasSuffix(buf, tag[:n]) {
			return n
		}
	}
	return 0
}

// SplitReasoning separates a complete response in one call.
func SplitReasoning(full string) (text, reasoning string) {
	var s ReasoningSplitter
	t, r := s.Push(full)
	ft, fr := s.Flush()
	return t + ft, r + fr
}
