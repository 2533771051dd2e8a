package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperscore/paperscore/internal/rubric"
	"github.com/paperscore/paperscore/internal/structure"
)

func region(id, number string, y float64) structure.Region {
	return structure.Region{
		ID:             id,
		QuestionNumber: number,
		Box:            structure.Box{X: 0, Y: y, W: 500, H: 100},
	}
}

func threeEntryRubric() rubric.Rubric {
	return rubric.Rubric{Entries: []rubric.Entry{
		{QuestionID: "1", MaxScore: 10, AnswerSpec: "x=2"},
		{QuestionID: "2", MaxScore: 5, AnswerSpec: "y=3"},
		{QuestionID: "3", MaxScore: 15, AnswerSpec: "z=4"},
	}}
}

func TestMatchByNumber(t *testing.T) {
	regions := []structure.Region{
		region("c0-r0", "1", 0),
		region("c0-r1", "2", 100),
		region("c0-r2", "3", 200),
	}

	result := Match(regions, threeEntryRubric())

	assert.Equal(t, PolicyNumber, result.Policy)
	require.Len(t, result.Matched, 3)
	assert.Empty(t, result.MissingAnswers)
	for i, mq := range result.Matched {
		require.NotNil(t, mq.Entry, "question %d", i)
		assert.Equal(t, regions[i].QuestionNumber, mq.Entry.QuestionID)
	}
}

func TestMatchLeadingZeros(t *testing.T) {
	regions := []structure.Region{region("c0-r0", "01", 0)}
	r := rubric.Rubric{Entries: []rubric.Entry{{QuestionID: "1", MaxScore: 10}}}

	result := Match(regions, r)

	require.Len(t, result.Matched, 1)
	require.NotNil(t, result.Matched[0].Entry)
	assert.Equal(t, "1", result.Matched[0].Entry.QuestionID)
}

func TestMatchContinuationMerge(t *testing.T) {
	// Question 2 spills into the second column; both regions claim "2" and
	// collapse into one question with a merged bounding box.
	first := region("c0-r1", "2", 300)
	second := structure.Region{
		ID:             "c1-r0",
		QuestionNumber: "2",
		Column:         1,
		Box:            structure.Box{X: 500, Y: 0, W: 500, H: 200},
	}
	regions := []structure.Region{region("c0-r0", "1", 0), first, second, region("c1-r1", "3", 200)}

	result := Match(regions, threeEntryRubric())

	require.Len(t, result.Matched, 3)
	merged := result.Matched[1]
	require.NotNil(t, merged.Entry)
	assert.Equal(t, "2", merged.Entry.QuestionID)
	assert.Equal(t, 0.0, merged.Region.Box.X)
	assert.Equal(t, 1000.0, merged.Region.Box.W)
	assert.Equal(t, 0.0, merged.Region.Box.Y)
	assert.Equal(t, 400.0, merged.Region.Box.H)
}

func TestMatchMissingAnswer(t *testing.T) {
	regions := []structure.Region{
		region("c0-r0", "1", 0),
		region("c0-r1", "3", 100),
	}

	result := Match(regions, threeEntryRubric())

	require.Len(t, result.Matched, 2)
	require.Len(t, result.MissingAnswers, 1)
	assert.Equal(t, "2", result.MissingAnswers[0].QuestionID)
}

func TestMatchUnmatchedRegion(t *testing.T) {
	regions := []structure.Region{
		region("c0-r0", "1", 0),
		region("c0-r1", "9", 100),
	}

	result := Match(regions, threeEntryRubric())

	require.Len(t, result.Matched, 2)
	assert.False(t, result.Matched[0].Unmatched())
	assert.True(t, result.Matched[1].Unmatched())
}

func TestMatchPositionalFallback(t *testing.T) {
	// One region without a number forces positional matching for the page.
	regions := []structure.Region{
		region("c0-r0", "1", 0),
		region("c0-r1", "", 100),
		region("c0-r2", "3", 200),
	}

	result := Match(regions, threeEntryRubric())

	assert.Equal(t, PolicyPositional, result.Policy)
	require.Len(t, result.Matched, 3)
	for i, mq := range result.Matched {
		require.NotNil(t, mq.Entry, "question %d", i)
		assert.Equal(t, threeEntryRubric().Entries[i].QuestionID, mq.Entry.QuestionID)
	}
}

func TestMatchPositionalMoreEntriesThanRegions(t *testing.T) {
	regions := []structure.Region{region("c0-r0", "", 0)}

	result := Match(regions, threeEntryRubric())

	assert.Equal(t, PolicyPositional, result.Policy)
	require.Len(t, result.Matched, 1)
	require.Len(t, result.MissingAnswers, 2)
	assert.Equal(t, "2", result.MissingAnswers[0].QuestionID)
	assert.Equal(t, "3", result.MissingAnswers[1].QuestionID)
}

func TestMatchPositionalMoreRegionsThanEntries(t *testing.T) {
	regions := []structure.Region{
		region("c0-r0", "", 0),
		region("c0-r1", "", 100),
		region("c0-r2", "", 200),
		region("c0-r3", "", 300),
	}

	result := Match(regions, threeEntryRubric())

	require.Len(t, result.Matched, 4)
	assert.True(t, result.Matched[3].Unmatched())
	assert.Empty(t, result.MissingAnswers)
}

func TestMatchNoRegions(t *testing.T) {
	result := Match(nil, threeEntryRubric())

	assert.Equal(t, PolicyPositional, result.Policy)
	assert.Empty(t, result.Matched)
	assert.Len(t, result.MissingAnswers, 3)
}
