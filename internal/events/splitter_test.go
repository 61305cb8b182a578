package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitReasoning(t *testing.T) {
	tests := []struct {
		name          string
		in            string
		wantText      string
		wantReasoning string
	}{
		{name: "plain", in: "hello", wantText: "hello"},
		{name: "leading think", in: "<think>plan it</think>Done.", wantText: "Done.", wantReasoning: "plan it"},
		{name: "unterminated think", in: "a<think>still going", wantText: "a", wantReasoning: "still going"},
		{name: "two blocks", in: "<think>x</think>1<think>y</think>2", wantText: "12", wantReasoning: "xy"},
		{name: "lookalike tag", in: "a <thin b", wantText: "a <thin b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, reasoning := SplitReasoning(tt.in)
			assert.Equal(t, tt.wantText, text)
			assert.Equal(t, tt.wantReasoning, reasoning)
		})
	}
}

func TestReasoningSplitterTagsAcrossDeltas(t *testing.T) {
	var s ReasoningSplitter
	var text, reasoning string
	for _, d := range []string{"Hi <th", "ink>secr", "et</thi", "nk> there"} {
		tx, rs := s.Push(d)
		text += tx
		reasoning += rs
	}
	tx, rs := s.Flush()
	text += tx
	reasoning += rs

	assert.Equal(t, "Hi  there", text)
	assert.Equal(t, "secret", reasoning)
}

func TestReasoningSplitterHoldsPartialTag(t *testing.T) {
	var s ReasoningSplitter
	tx, rs := s.Push("value <")
	assert.Equal(t, "value ", tx)
	assert.Empty(t, rs)

	tx, rs = s.Flush()
	assert.Equal(t, "<", tx)
	assert.Empty(t, rs)
}
