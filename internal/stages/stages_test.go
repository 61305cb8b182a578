package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	in := []string{"Research", "Draft", "Review"}
	names, total := Build(in)
	assert.Equal(t, in, names)
	assert.Equal(t, 3, total)

	in[0] = "mutated"
	assert.Equal(t, "Research", names[0], "Build must copy its input")

	names, total = Build(nil)
	assert.Nil(t, names)
	assert.Zero(t, total)
}

func TestAdvanceZeroIsNoop(t *testing.T) {
	names := []string{"a", "b", "c", "d"}
	for c := 0; c < len(names); c++ {
		adv, err := AdvanceStage(0, c, len(names), names)
		require.NoError(t, err)
		assert.Equal(t, c, adv.Current)
		assert.False(t, adv.Done)
		assert.Empty(t, adv.Completed(names))
	}
}

func TestAdvanceAllFinishes(t *testing.T) {
	names := []string{"a", "b", "c"}
	for c := 0; c <= len(names); c++ {
		adv, err := AdvanceStage(All, c, len(names), names)
		require.NoError(t, err)
		assert.Equal(t, len(names), adv.Current)
		assert.True(t, adv.Done)
		assert.Equal(t, names[c:], append([]string{}, adv.Completed(names)...))
		assert.Empty(t, adv.NextStage)
	}
}

func TestAdvancePositive(t *testing.T) {
	names := []string{"a", "b", "c", "d"}

	tests := []struct {
		name          string
		count         int
		current       int
		wantCurrent   int
		wantDone      bool
		wantNext      string
		wantCompleted []string
	}{
		{"one step", 1, 0, 1, false, "b", []string{"a"}},
		{"two steps", 2, 1, 3, false, "d", []string{"b", "c"}},
		{"exact finish", 1, 3, 4, true, "", []string{"d"}},
		{"saturates at total", 10, 2, 4, true, "", []string{"c", "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adv, err := AdvanceStage(tt.count, tt.current, len(names), names)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCurrent, adv.Current)
			assert.Equal(t, tt.wantDone, adv.Done)
			assert.Equal(t, tt.wantNext, adv.NextStage)
			assert.Equal(t, tt.wantCompleted, adv.Completed(names))
		})
	}
}

func TestAdvanceRejectsNegative(t *testing.T) {
	names := []string{"a", "b"}
	adv, err := AdvanceStage(-2, 1, 2, names)
	assert.ErrorIs(t, err, ErrInvalidStageCount)
	assert.Equal(t, 1, adv.Current)
}

func TestEditPreservesCompletedPrefix(t *testing.T) {
	names := []string{"A", "B", "C"}
	for current := 0; current <= len(names); current++ {
		got, total, err := Edit([]string{"X", "Y"}, current, names)
		require.NoError(t, err)
		assert.Equal(t, names[:current], got[:current])
		assert.Equal(t, current+2, total)
		assert.Equal(t, []string{"X", "Y"}, got[current:])
	}
}

func TestEditReplan(t *testing.T) {
	names := []string{"A", "B", "C"}
	got, total, err := Edit([]string{"B2", "C2", "D"}, 1, names)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B2", "C2", "D"}, got)
	assert.Equal(t, 4, total)
	assert.Equal(t, []string{"A", "B", "C"}, names, "Edit must not mutate its input")
}

func TestEditRejectsEmpty(t *testing.T) {
	names := []string{"A", "B"}
	got, total, err := Edit(nil, 1, names)
	assert.ErrorIs(t, err, ErrEmptyStages)
	assert.Equal(t, names, got)
	assert.Equal(t, 2, total)
}

func TestLabel(t *testing.T) {
	names := []string{"A", "B"}
	assert.Equal(t, "no plan", Label(0, 0, nil))
	assert.Equal(t, "B", Label(1, 2, names))
	assert.Equal(t, "all stages complete", Label(2, 2, names))
}
