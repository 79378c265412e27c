package trace

import (
	"testing"

	"github.com/Manu343726/lltrace/pkg/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseRecords(t *testing.T, lines ...string) []trace.Record {
	t.Helper()
	records := make([]trace.Record, len(lines))
	for i, line := range lines {
		record, err := trace.ParseRecord(line)
		require.NoError(t, err)
		records[i] = record
	}
	return records
}

func TestGroupRecords(t *testing.T) {
	records := parseRecords(t,
		"1,32,7,1,x,",
		"entry,bar,2,",
		"f,32,1,1,a,",
		"f,32,5,1,b,",
		"0,2,bar,entry:0,c,8,0",
		"2,32,5,1,b,",
		"1,32,1,1,a,",
		"r,32,6,1,c,",
		"0,3,bar,entry:0,entry:0-0,1,1",
	)

	items := groupRecords(records)
	require.Len(t, items, 4)

	assert.Equal(t, "operands without instruction", items[0].String())
	assert.Len(t, items[0].Operands, 1)

	assert.Equal(t, "call bar (2 params)", items[1].String())
	assert.Len(t, items[1].Operands, 2)

	assert.Equal(t, "#0 add bar:2 entry:0/c", items[2].String())
	assert.Len(t, items[2].Operands, 3)
	assert.Equal(t, "r %c = 6 (i32)", describeOperand(items[2].Operands[2]))

	assert.Equal(t, "#1 ret bar:3 entry:0/entry:0-0", items[3].String())
	assert.Empty(t, items[3].Operands)
}

func TestDescribePhiOperand(t *testing.T) {
	records := parseRecords(t, "2,32,0,0, ,entry:0,")
	assert.Equal(t, "2 = 0 (i32) from entry:0", describeOperand(records[0].Operand))
}

func TestBuildTree(t *testing.T) {
	items := groupRecords(parseRecords(t,
		"0,2,bar,entry:0,c,8,0",
		"1,32,1,1,a,",
	))

	root := buildTree("trace.gz", "bar/loop 3\nbar/exit 9\n", items)
	require.Len(t, root.GetChildren(), 2)

	labels := root.GetChildren()[0]
	assert.Equal(t, "label map", labels.GetText())
	assert.Len(t, labels.GetChildren(), 2)

	inst := root.GetChildren()[1]
	assert.Equal(t, items[0], inst.GetReference())
	assert.False(t, inst.IsExpanded())
	assert.Len(t, inst.GetChildren(), 1)
}
