package holiday

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCustomPairs(t *testing.T) {
	t.Parallel()

	defs, warnings, err := ParseCustom(json.RawMessage(`["0803", "七夕节", "1224", "Christmas Eve", "0520", "网络情人节", "0101"]`))
	require.NoError(t, err)
	require.Len(t, defs, 3)
	assert.Equal(t, "qixi", defs[0].ID)
	assert.Equal(t, 8, defs[0].Month)
	assert.Equal(t, 3, defs[0].Day)
	assert.Equal(t, "christmas-eve", defs[1].ID)
	assert.Equal(t, "custom-0520", defs[2].ID)
	for _, d := range defs {
		assert.Equal(t, SourceCustom, d.Source)
		assert.Equal(t, 1, d.Duration())
	}
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "0101")
}

func TestParseCustomObjects(t *testing.T) {
	t.Parallel()

	raw := `[
		{"id": "Team-Day", "name": "团队日", "month": 7, "day": 20, "duration_days": 3, "aliases": [" 团建 ", ""]},
		{"name": "社区周年", "date": "0915", "description": "社区成立纪念"},
		{"name": "腊八节", "dates": {"2026": "0126", "2027": "0115"}}
	]`
	defs, warnings, err := ParseCustom(json.RawMessage(raw))
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, defs, 3)

	assert.Equal(t, "team-day", defs[0].ID)
	assert.Equal(t, 3, defs[0].Duration())
	assert.Equal(t, []string{"团建"}, defs[0].Aliases)

	assert.Equal(t, "custom-0915", defs[1].ID)
	assert.Equal(t, "社区成立纪念", defs[1].Description)

	assert.True(t, defs[2].Pinned())
	assert.Equal(t, []int{2026, 2027}, defs[2].Years())
	assert.Equal(t, 1, defs[2].Month)
	assert.Equal(t, 26, defs[2].Day)
	assert.Equal(t, "custom-0126", defs[2].ID)
	start, ok := defs[2].StartIn(2027)
	require.True(t, ok)
	assert.Equal(t, "2027-01-15", start.String())
	_, ok = defs[2].StartIn(2028)
	assert.False(t, ok)
}

func TestParseCustomRejectsInvalid(t *testing.T) {
	t.Parallel()

	for name, raw := range map[string]string{
		"not a list":    `{"name":"x"}`,
		"bad token":     `["1301", "x"]`,
		"feb 30":        `["0230", "x"]`,
		"mixed":         `[{"name":"x","date":"0101"}, "0102", "y"]`,
		"missing name":  `[{"date":"0101"}]`,
		"bad month":     `[{"name":"x","month":13,"day":1}]`,
		"unknown field": `[{"name":"x","date":"0101","colour":"red"}]`,
		"bad id":        `[{"id":"has space","name":"x","date":"0101"}]`,
		"bad dates":     `[{"name":"x","dates":{"2025":"0229"}}]`,
	} {
		_, _, err := ParseCustom(json.RawMessage(raw))
		assert.Error(t, err, name)
	}
}

func TestParseCustomEmpty(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "null", "[]", "  "} {
		defs, warnings, err := ParseCustom(json.RawMessage(raw))
		require.NoError(t, err, raw)
		assert.Nil(t, defs)
		assert.Nil(t, warnings)
	}
}

func TestSlug(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "christmas-eve", Slug("  Christmas  Eve! "))
	assert.Equal(t, "pi-day-3-14", Slug("Pi Day (3.14)"))
	assert.Equal(t, "", Slug("七夕"))
}
