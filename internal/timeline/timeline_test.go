package timeline

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/cinescript/internal/interval"
	"github.com/JustinTDCT/cinescript/internal/models"
)

func cand(start, end float64, m models.DetectionMethod, conf float64) models.CandidateExclusion {
	return models.CandidateExclusion{
		Interval:   models.TimeInterval{Start: start, End: end},
		Method:     m,
		Confidence: conf,
	}
}

func manual(start, end float64, reason string) *models.SkipRange {
	sr := &models.SkipRange{
		ID:       uuid.New(),
		Interval: models.TimeInterval{Start: start, End: end},
	}
	if reason != "" {
		sr.Reason = &reason
	}
	return sr
}

func TestBuild_MergesOverlappingDetections(t *testing.T) {
	tl := Build([]models.CandidateExclusion{
		cand(18, 30, models.MethodAudioSilence, 0.7),
		cand(10, 20, models.MethodVisualDarkness, 0.9),
	}, nil)

	require.Len(t, tl.Entries, 1)
	e := tl.Entries[0]
	assert.Equal(t, models.TimeInterval{Start: 10, End: 30}, e.Interval)
	assert.Equal(t, models.MethodVisualDarkness, e.Method)
	assert.Equal(t, 0.9, e.Confidence)
}

func TestBuild_HigherConfidenceMethodWins(t *testing.T) {
	tl := Build([]models.CandidateExclusion{
		cand(10, 20, models.MethodVisualDarkness, 0.5),
		cand(15, 25, models.MethodAudioSilence, 0.8),
	}, nil)

	require.Len(t, tl.Entries, 1)
	assert.Equal(t, models.MethodAudioSilence, tl.Entries[0].Method)
	assert.Equal(t, 0.8, tl.Entries[0].Confidence)
}

func TestBuild_ManualAdjacentStaysSeparate(t *testing.T) {
	tl := Build(
		[]models.CandidateExclusion{cand(50, 60, models.MethodVisualDarkness, 0.8)},
		[]*models.SkipRange{manual(40, 50, "ad break")},
	)

	require.Len(t, tl.Entries, 2)
	assert.Equal(t, models.MethodManual, tl.Entries[0].Method)
	assert.Equal(t, 1.0, tl.Entries[0].Confidence)
	assert.Equal(t, "ad break", tl.Entries[0].Note)
	assert.Equal(t, models.MethodVisualDarkness, tl.Entries[1].Method)
	assert.Equal(t, 0.8, tl.Entries[1].Confidence)
}

func TestBuild_ManualDominatesGroup(t *testing.T) {
	tl := Build(
		[]models.CandidateExclusion{
			cand(0, 12, models.MethodVisualDarkness, 0.99),
			cand(20, 40, models.MethodAudioSilence, 0.95),
		},
		[]*models.SkipRange{manual(10, 25, "credits")},
	)

	require.Len(t, tl.Entries, 1)
	e := tl.Entries[0]
	assert.Equal(t, models.TimeInterval{Start: 0, End: 40}, e.Interval)
	assert.Equal(t, models.MethodManual, e.Method)
	assert.Equal(t, 1.0, e.Confidence)
	assert.Equal(t, "credits", e.Note)
}

func TestBuild_TiePolicy(t *testing.T) {
	detected := []models.CandidateExclusion{
		cand(0, 10, models.MethodAudioSilence, 0.6),
		cand(5, 15, models.MethodVisualDarkness, 0.6),
	}

	tl := Build(detected, nil)
	require.Len(t, tl.Entries, 1)
	assert.Equal(t, models.MethodVisualDarkness, tl.Entries[0].Method)

	tl = Builder{TiePolicy: AudioFirst}.Build(detected, nil)
	require.Len(t, tl.Entries, 1)
	assert.Equal(t, models.MethodAudioSilence, tl.Entries[0].Method)
}

func TestBuild_EmptyInputs(t *testing.T) {
	tl := Build(nil, nil)
	assert.Empty(t, tl.Entries)
	assert.Zero(t, tl.TotalDuration())
}

func TestBuild_OutputSortedAndDisjoint(t *testing.T) {
	detected := []models.CandidateExclusion{
		cand(90, 95, models.MethodAudioSilence, 0.3),
		cand(0, 5, models.MethodVisualDarkness, 0.9),
		cand(4, 8, models.MethodAudioSilence, 0.2),
		cand(8, 9, models.MethodAudioSilence, 0.2),
		cand(30, 70, models.MethodVisualDarkness, 0.4),
		cand(35, 36, models.MethodAudioSilence, 0.5),
	}
	in := append([]models.CandidateExclusion(nil), detected...)

	tl := Build(detected, []*models.SkipRange{manual(60, 91, "")})
	assert.Equal(t, in, detected, "input must not be reordered")

	for i := 1; i < len(tl.Entries); i++ {
		prev, cur := tl.Entries[i-1].Interval, tl.Entries[i].Interval
		assert.LessOrEqual(t, prev.End, cur.Start)
		assert.False(t, interval.Overlaps(prev, cur))
	}
	require.Len(t, tl.Entries, 3)
	assert.Equal(t, models.TimeInterval{Start: 0, End: 8}, tl.Entries[0].Interval)
	assert.Equal(t, models.TimeInterval{Start: 8, End: 9}, tl.Entries[1].Interval)
	assert.Equal(t, models.TimeInterval{Start: 30, End: 95}, tl.Entries[2].Interval)
	assert.Equal(t, models.MethodManual, tl.Entries[2].Method)
}

func TestApply_CutsExclusionsOutOfWindows(t *testing.T) {
	windows := []models.ChunkWindow{
		{Index: 0, Start: 0, End: 30},
		{Index: 1, Start: 25, End: 55},
		{Index: 2, Start: 50, End: 75},
	}
	tl := Build([]models.CandidateExclusion{
		cand(10, 20, models.MethodVisualDarkness, 0.9),
		cand(40, 60, models.MethodAudioSilence, 0.5),
	}, nil)

	got := Apply(windows, tl)
	assert.Equal(t, []models.ChunkSegment{
		{Window: 0, Interval: models.TimeInterval{Start: 0, End: 10}},
		{Window: 0, Interval: models.TimeInterval{Start: 20, End: 30}},
		{Window: 1, Interval: models.TimeInterval{Start: 25, End: 40}},
		{Window: 2, Interval: models.TimeInterval{Start: 60, End: 75}},
	}, got)

	for _, seg := range got {
		for _, e := range tl.Entries {
			assert.False(t, interval.Overlaps(seg.Interval, e.Interval))
		}
	}
}

func TestApply_MinSegment(t *testing.T) {
	windows := []models.ChunkWindow{{Index: 0, Start: 0, End: 30}}
	tl := Build([]models.CandidateExclusion{cand(0.5, 29, models.MethodVisualDarkness, 0.9)}, nil)

	got := Builder{MinSegment: 1}.Apply(windows, tl)
	require.Len(t, got, 1)
	assert.Equal(t, models.TimeInterval{Start: 29, End: 30}, got[0].Interval)
}

func TestParseTiePolicy(t *testing.T) {
	p, ok := ParseTiePolicy("audio_first")
	assert.True(t, ok)
	assert.Equal(t, AudioFirst, p)
	assert.Equal(t, "audio_first", p.String())

	_, ok = ParseTiePolicy("loudest")
	assert.False(t, ok)
}
