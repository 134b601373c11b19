package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMsgString(t *testing.T) {
	m := Msg{Kind: Error, Text: "cannot find name 'x'", Location: &Location{
		File:   "/p/agent/index.ts",
		Line:   3,
		Column: 7,
	}}
	assert.Equal(t, "/p/agent/index.ts:3:7: error: cannot find name 'x'", m.String())

	bare := Msg{Kind: Warning, Text: "unused import"}
	assert.Equal(t, "warning: unused import", bare.String())
}

func TestHasErrors(t *testing.T) {
	assert.False(t, HasErrors([]Msg{{Kind: Warning, Text: "w"}}))
	assert.True(t, HasErrors([]Msg{{Kind: Warning, Text: "w"}, {Kind: Error, Text: "e"}}))
}

func TestSortOrdersByPosition(t *testing.T) {
	msgs := []Msg{
		{Kind: Error, Text: "b", Location: &Location{File: "b.ts", Line: 1}},
		{Kind: Error, Text: "a2", Location: &Location{File: "a.ts", Line: 9}},
		{Kind: Error, Text: "global"},
		{Kind: Error, Text: "a1", Location: &Location{File: "a.ts", Line: 2}},
	}
	Sort(msgs)
	assert.Equal(t, "global", msgs[0].Text)
	assert.Equal(t, "a1", msgs[1].Text)
	assert.Equal(t, "a2", msgs[2].Text)
	assert.Equal(t, "b", msgs[3].Text)
}

func TestRender(t *testing.T) {
	out := Render([]Msg{{Kind: Error, Text: "one"}, {Kind: Warning, Text: "two"}})
	assert.Equal(t, "error: one\nwarning: two", out)
}
