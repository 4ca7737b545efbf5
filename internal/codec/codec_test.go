package codec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBody = "type: comment\nbody (includes): [\"spoiler\"]\naction: filter"

func testCodec() Codec {
	return V020.Bind("ruletoggle")
}

func TestCodec_Border(t *testing.T) {
	c := testCodec()

	assert.Equal(t, "###### DO NOT EDIT THIS LINE - start ruletoggle managed rule quiet-hours", c.Border("quiet-hours", Start))
	assert.Equal(t, "###### DO NOT EDIT THIS LINE - end ruletoggle managed rule quiet-hours", c.Border("quiet-hours", End))
}

func TestCodec_InfoHeader(t *testing.T) {
	c := testCodec()

	header := c.InfoHeader("0 0 * * 3", 30)
	lines := strings.Split(header, "\n")

	require.Len(t, lines, 4)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, BorderPrefix), line)
	}
	assert.Contains(t, lines[1], "https://crontab.guru/#0_0_*_*_3")
	assert.Contains(t, lines[1], "disabled 30 seconds later")
	assert.Equal(t, BorderPrefix+"DO NOT EDIT THIS BLOCK WHILE IT IS COMMENTED OUT", lines[3])
	assert.Equal(t, header, c.InfoHeader("0 0 * * 3", 30), "header must be deterministic")
}

func TestCodec_LegacyHeaderText(t *testing.T) {
	c := V010.Bind("ruletoggle")

	header := c.InfoHeader("0 0 * * 3", 30)

	assert.Equal(t, strings.Join([]string{
		BorderPrefix + "This rule will be automatically enabled at according to the following cron schedule here:",
		BorderPrefix + "https://crontab.guru/#0_0_*_*_3 (in the UTC timezone) and disabled 30 seconds later.",
		BorderPrefix + "To delete this rule use the 'Delete AutoModerator Toggled Block' in the subreddit context menu!",
		BorderPrefix + "DO NOT EDIT THIS BLOCK WHILE IT IS COMMENTED OUT",
	}, "\n"), header)
}

func TestCodec_RenderBlock_Enabled(t *testing.T) {
	c := testCodec()
	rule := Rule{Name: "quiet-hours", Recurrence: "0 0 * * 3", Seconds: 30, Body: "\n" + testBody + "\n\n"}

	r := c.RenderBlock(rule, Enabled)

	assert.Equal(t, r.Validation, r.Block)
	assert.True(t, strings.HasPrefix(r.Block, c.Border("quiet-hours", Start)+"\n"+c.InfoHeader("0 0 * * 3", 30)+"\n"))
	assert.True(t, strings.HasSuffix(r.Block, testBody+"\n"+c.Border("quiet-hours", End)))
}

func TestCodec_RenderBlock_Disabled(t *testing.T) {
	c := testCodec()
	rule := Rule{Name: "quiet-hours", Recurrence: "0 0 * * 3", Seconds: 30, Body: testBody}

	r := c.RenderBlock(rule, Disabled)

	assert.NotEqual(t, r.Validation, r.Block)
	assert.Contains(t, r.Block, "#type: comment\n#body (includes): [\"spoiler\"]\n#action: filter")
	assert.Contains(t, r.Validation, testBody)
	assert.NotContains(t, r.Validation, "#type")
}

func TestCodec_ExtractBody_RoundTrip(t *testing.T) {
	c := testCodec()
	bodies := []string{
		testBody,
		"  indented: value\n",
		"single line",
		"with\n\nblank lines",
	}

	for _, body := range bodies {
		r := c.RenderBlock(Rule{Name: "r", Recurrence: "@daily", Seconds: 60, Body: body}, Enabled)
		doc := "before: 1\n---\n" + r.Block + "\n---\nafter: 2"

		got, err := c.ExtractBody(doc, "r", "@daily", 60)
		require.NoError(t, err)
		assert.Equal(t, strings.TrimSpace(body), got)
	}
}

func TestCodec_ExtractBody_Errors(t *testing.T) {
	c := testCodec()
	m := c.Markers("r", "@daily", 60)

	_, err := c.ExtractBody("nothing here", "r", "@daily", 60)
	assert.ErrorIs(t, err, ErrBlockNotFound)

	_, err = c.ExtractBody(m.Opening()+"\nbody without end", "r", "@daily", 60)
	assert.ErrorIs(t, err, ErrBlockMalformed)

	// A different header (other duration) does not match.
	r := c.RenderBlock(Rule{Name: "r", Recurrence: "@daily", Seconds: 60, Body: "x: 1"}, Enabled)
	_, err = c.ExtractBody(r.Block, "r", "@daily", 61)
	assert.ErrorIs(t, err, ErrBlockNotFound)
}

func TestApplyState(t *testing.T) {
	body := "a: 1\n\nb: 2"

	disabled := ApplyState(body, Disabled)
	assert.Equal(t, "#a: 1\n#\n#b: 2", disabled)
	assert.Equal(t, body, ApplyState(disabled, Enabled))
	assert.Equal(t, body, ApplyState(body, Enabled), "enabling never strips uncommented lines")

	already := "# note\na: 1"
	assert.Equal(t, "## note\n#a: 1", ApplyState(already, Disabled))
	assert.Equal(t, already, ApplyState(ApplyState(already, Disabled), Enabled))
}

func TestStateOf(t *testing.T) {
	assert.Equal(t, Enabled, StateOf("a: 1\nb: 2"))
	assert.Equal(t, Disabled, StateOf("#a: 1\n#b: 2"))
	assert.Equal(t, Disabled, StateOf("#a: 1\n\n#b: 2"))
	assert.Equal(t, Enabled, StateOf("#a: 1\nb: 2"))
	assert.Equal(t, Enabled, StateOf(""))
}

func TestParseState(t *testing.T) {
	s, err := ParseState("Enabled")
	require.NoError(t, err)
	assert.Equal(t, Enabled, s)

	s, err = ParseState("disabled")
	require.NoError(t, err)
	assert.Equal(t, Disabled, s)

	_, err = ParseState("paused")
	assert.Error(t, err)

	var decoded State
	require.NoError(t, decoded.UnmarshalText([]byte("enabled")))
	assert.Equal(t, Enabled, decoded)
	text, err := Disabled.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "disabled", string(text))
}

func TestIndexLine(t *testing.T) {
	doc := "a\n###### x rule foobar\nb\n###### x rule foo\nc"

	assert.Equal(t, strings.Index(doc, "###### x rule foo\n"), IndexLine(doc, "###### x rule foo"))
	assert.Equal(t, 2, IndexLine(doc, "###### x rule foobar"))
	assert.Equal(t, -1, IndexLine(doc, "rule foo"))
	assert.Equal(t, 0, IndexLine(doc, "a"))
	assert.Equal(t, len(doc)-1, IndexLine(doc, "c"))
	assert.Equal(t, -1, IndexLine(doc, ""))
	assert.True(t, ContainsLine("x\r\ny", "x"))
}

func TestCodec_ExtractBody_PrefixNames(t *testing.T) {
	c := testCodec()
	long := c.RenderBlock(Rule{Name: "quiet-hours-long", Recurrence: "@daily", Seconds: 60, Body: "long: 1"}, Enabled)
	short := c.RenderBlock(Rule{Name: "quiet-hours", Recurrence: "@daily", Seconds: 60, Body: "short: 1"}, Enabled)
	doc := long.Block + "\n---\n" + short.Block

	got, err := c.ExtractBody(doc, "quiet-hours", "@daily", 60)
	require.NoError(t, err)
	assert.Equal(t, "short: 1", got)
}

func TestCodec_RuleNames(t *testing.T) {
	c := testCodec()
	other := V020.Bind("otherbot")

	doc := strings.Join([]string{
		"type: submission",
		"---",
		c.RenderBlock(Rule{Name: "quiet-hours", Recurrence: "0 0 * * 3", Seconds: 30, Body: testBody}, Enabled).Block,
		"---",
		other.RenderBlock(Rule{Name: "foreign", Recurrence: "0 0 * * *", Seconds: 60, Body: testBody}, Enabled).Block,
		"---",
		c.RenderBlock(Rule{Name: "night mode", Recurrence: "0 22 * * *", Seconds: 3600, Body: testBody}, Disabled).Block,
	}, "\n")

	assert.Equal(t, []string{"quiet-hours", "night mode"}, c.RuleNames(doc))
	assert.Empty(t, c.RuleNames("type: submission"))
}

func TestCodec_BorderMarkers(t *testing.T) {
	c := testCodec()
	m := c.BorderMarkers("a")
	full := c.Markers("a", "0 0 * * *", 10)

	assert.Equal(t, full.Start, m.Start)
	assert.Equal(t, full.End, m.End)
	assert.Empty(t, m.Header)
}
