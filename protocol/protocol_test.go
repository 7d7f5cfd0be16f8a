package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePacket(t *testing.T) {
	cases := []struct {
		line string
		typ  string
		args []string
	}{
		{"ping\n", "ping", nil},
		{"msg|conv-1|hello\r\n", "msg", []string{"conv-1", "hello"}},
		{`msg|conv-1|a\|b\,c\\d`, "msg", []string{"conv-1", `a|b,c\d`}},
		{`msg|conv-1|line1\nline2`, "msg", []string{"conv-1", "line1\nline2"}},
		{"hist|conv-1|4|10", "hist", []string{"conv-1", "4", "10"}},
		{"sub|", "sub", []string{""}},
	}
	for _, tc := range cases {
		pkt, err := ParsePacket(tc.line)
		require.NoError(t, err, tc.line)
		assert.Equal(t, tc.typ, pkt.Type, tc.line)
		assert.Equal(t, tc.args, pkt.Args, tc.line)
	}

	_, err := ParsePacket("|x")
	assert.ErrorIs(t, err, ErrInvalidPacket)
	_, err = ParsePacket("\n")
	assert.ErrorIs(t, err, ErrInvalidPacket)
}

func TestArg(t *testing.T) {
	pkt := &Packet{Type: "like", Args: []string{"u2"}}
	assert.Equal(t, "u2", pkt.Arg(0))
	assert.Equal(t, "", pkt.Arg(1))
	assert.Equal(t, "", pkt.Arg(-1))
}

func TestFormatEscapesFields(t *testing.T) {
	assert.Equal(t, "pong\n", Format("pong"))
	assert.Equal(t, "fail|msg|bad\\|input\n", Format("fail", "msg", "bad|input"))

	text := "a|b,c\\d\ne"
	pkt, err := ParsePacket(Format("msg", "conv", text))
	require.NoError(t, err)
	assert.Equal(t, []string{"conv", text}, pkt.Args)
}

func TestListRoundTrip(t *testing.T) {
	raw := List([]string{
		Record("conv-1", "peer,1", "2"),
		Record("conv-2", "peer|2", "0"),
	})
	line := FormatRaw("list", raw)
	assert.Equal(t, "list|conv-1|peer\\,1|2,conv-2|peer\\|2|0\n", line)

	assert.Equal(t, [][]string{
		{"conv-1", "peer,1", "2"},
		{"conv-2", "peer|2", "0"},
	}, SplitList(raw))

	assert.Nil(t, SplitList(""))
	assert.Equal(t, "list\n", FormatRaw("list", ""))
}
