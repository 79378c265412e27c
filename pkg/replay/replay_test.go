package replay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/Manu343726/lltrace/pkg/ir"
	"github.com/Manu343726/lltrace/pkg/trace"
	"github.com/Manu343726/lltrace/pkg/tracelogger"
	"github.com/Manu343726/lltrace/pkg/tracer/planner"
	"github.com/Manu343726/lltrace/pkg/tracer/workload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testModule = `
name: replay
functions:
  - name: bar
    result: i32
    args: [{name: a, type: i32}, {name: b, type: i32}]
    blocks:
      - name: entry
        instructions:
          - {name: c, op: add, type: i32, operands: ["%a", "%b"], line: 2}
          - {op: ret, operands: ["%c"], line: 3}
  - name: neg
    result: i32
    args: [{name: x, type: i32}]
    blocks:
      - name: entry
        instructions:
          - {name: y, op: sub, type: i32, operands: ["i32 0", "%x"], line: 7}
          - {op: ret, operands: ["%y"], line: 8}
  - name: vadd
    result: "<2 x i32>"
    args: [{name: v, type: "<2 x i32>"}]
    blocks:
      - name: entry
        instructions:
          - {name: w, op: add, type: "<2 x i32>", operands: ["%v", "<2 x i32> <1, 2>"], line: 12}
          - {op: ret, operands: ["%w"], line: 13}
`

type memoryStream struct {
	bytes.Buffer
}

func (m *memoryStream) Close() error {
	return nil
}

type memoryFiles struct {
	lock  sync.Mutex
	files map[string]*memoryStream
}

func (m *memoryFiles) open(name string) (io.WriteCloser, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.files == nil {
		m.files = map[string]*memoryStream{}
	}
	s := &memoryStream{}
	m.files[name] = s
	return s, nil
}

func (m *memoryFiles) lines(t *testing.T, name string) []string {
	t.Helper()
	m.lock.Lock()
	defer m.lock.Unlock()
	require.Contains(t, m.files, name)

	_, records, err := trace.ReadAll(bytes.NewReader(m.files[name].Bytes()))
	require.NoError(t, err)

	lines := make([]string, len(records))
	for i, r := range records {
		lines[i] = r.String()
	}
	return lines
}

func newReplayer(t *testing.T, open tracelogger.Opener, functions ...string) (*Replayer, *tracelogger.Tracer) {
	t.Helper()

	m, err := ir.LoadModule(strings.NewReader(testModule))
	require.NoError(t, err)

	w, err := workload.New(functions, false)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	plan := planner.NewPlan(m)
	require.NoError(t, planner.New(planner.Settings{Workload: w, Logger: logger}).PlanModule(m, plan))

	tracer := tracelogger.New(tracelogger.Settings{Open: open, Logger: logger})
	return New(Settings{Tracer: tracer, Plan: plan, Logger: logger}), tracer
}

func loadScript(t *testing.T, source string) *Script {
	t.Helper()
	script, err := LoadScript(strings.NewReader(source))
	require.NoError(t, err)
	return script
}

func TestBarScenario(t *testing.T) {
	files := &memoryFiles{}
	r, _ := newReplayer(t, files.open, "bar")

	script := loadScript(t, `
threads:
  - values:
      bar: {a: 1, b: 5, c: 6}
    path:
      - {function: bar, block: entry}
`)

	require.NoError(t, r.Run(context.Background(), script))

	assert.Equal(t, []string{
		"entry,bar,2,",
		"f,32,1,1,a,",
		"f,32,5,1,b,",
		"0,2,bar,entry:0,c,8,0",
		"2,32,5,1,b,",
		"1,32,1,1,a,",
		"r,32,6,1,c,",
		"0,3,bar,entry:0,entry:0-0,1,1",
		"1,32,6,1,c,",
	}, files.lines(t, tracelogger.DefaultTraceName))
}

func TestIntegersAreZeroExtended(t *testing.T) {
	files := &memoryFiles{}
	r, _ := newReplayer(t, files.open, "neg")

	script := loadScript(t, `
threads:
  - values:
      neg: {x: 5, y: -5}
    path:
      - {function: neg, block: entry}
`)

	require.NoError(t, r.Run(context.Background(), script))

	assert.Equal(t, []string{
		"entry,neg,1,",
		"f,32,5,1,x,",
		"0,7,neg,entry:0,y,10,0",
		"2,32,5,1,x,",
		"1,32,0,0, ,",
		"r,32,4294967291,1,y,",
		"0,8,neg,entry:0,entry:0-0,1,1",
		"1,32,4294967291,1,y,",
	}, files.lines(t, tracelogger.DefaultTraceName))
}

func TestVectors(t *testing.T) {
	files := &memoryFiles{}
	r, _ := newReplayer(t, files.open, "vadd")

	script := loadScript(t, `
threads:
  - values:
      vadd: {v: "0x0300000004000000", w: [4, 0, 0, 0, 6, 0, 0, 0]}
    path:
      - {function: vadd, block: entry}
`)

	require.NoError(t, r.Run(context.Background(), script))

	assert.Equal(t, []string{
		"entry,vadd,1,",
		"f,64,0x0300000004000000,1,v,",
		"0,12,vadd,entry:0,w,8,0",
		"2,64,0x0100000002000000,0, ,",
		"1,64,0x0300000004000000,1,v,",
		"r,64,0x0400000006000000,1,w,",
		"0,13,vadd,entry:0,entry:0-0,1,1",
		"1,64,0x0400000006000000,1,w,",
	}, files.lines(t, tracelogger.DefaultTraceName))
}

func TestConcurrentThreads(t *testing.T) {
	files := &memoryFiles{}
	r, tracer := newReplayer(t, files.open, "bar")

	script := loadScript(t, `
threads:
  - name: first
    trace: first.gz
    values:
      bar: {a: 1, b: 2, c: 3}
    path:
      - {function: bar, block: entry}
      - {function: bar, block: entry}
  - name: second
    trace: second.gz
    values:
      bar: {a: 10, b: 20, c: 30}
    path:
      - {function: bar, block: entry, from: 0, to: 1}
      - {function: bar, block: entry, from: 1, values: {c: 31}}
`)

	require.NoError(t, r.Run(context.Background(), script))
	assert.Equal(t, []string{"first.gz", "second.gz"}, tracer.Streams())

	first := files.lines(t, "first.gz")
	require.Len(t, first, 18)
	assert.Equal(t, first[:9], first[9:])
	assert.Equal(t, "r,32,3,1,c,", first[6])

	second := files.lines(t, "second.gz")
	require.Len(t, second, 9)
	assert.Equal(t, "r,32,30,1,c,", second[6])
	assert.Equal(t, "1,32,31,1,c,", second[8])
}

func TestSharedTraceIsRejected(t *testing.T) {
	files := &memoryFiles{}
	r, _ := newReplayer(t, files.open, "bar")

	script := loadScript(t, `
threads:
  - path: [{function: bar, block: entry}]
  - path: [{function: bar, block: entry}]
`)

	err := r.Run(context.Background(), script)
	assert.ErrorIs(t, err, ErrSharedTrace)
	assert.Empty(t, files.files)
}

func TestFatalErrorsAreReturned(t *testing.T) {
	failure := errors.New("disk full")
	r, _ := newReplayer(t, func(string) (io.WriteCloser, error) { return nil, failure }, "bar")

	script := loadScript(t, `
threads:
  - path: [{function: bar, block: entry}]
`)

	err := r.Run(context.Background(), script)
	require.Error(t, err)

	var fatal *tracelogger.FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, tracelogger.DefaultTraceName, fatal.Thread)
	assert.ErrorIs(t, err, tracelogger.ErrTraceOpen)
	assert.ErrorIs(t, err, failure)
}

func TestInvalidPaths(t *testing.T) {
	tests := []struct {
		name     string
		step     string
		expected error
	}{
		{"unknown function", "{function: missing, block: entry}", ErrUnknownFunction},
		{"unknown block", "{function: bar, block: missing}", ErrUnknownBlock},
		{"range out of block", "{function: bar, block: entry, from: 5, to: 0}", ErrInvalidScript},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			files := &memoryFiles{}
			r, _ := newReplayer(t, files.open, "bar")

			script := loadScript(t, "threads: [{path: ["+test.step+"]}]")
			assert.ErrorIs(t, r.Run(context.Background(), script), test.expected)
		})
	}
}

func TestRunThreadWithoutHandle(t *testing.T) {
	files := &memoryFiles{}
	r, _ := newReplayer(t, files.open, "bar")

	assert.ErrorIs(t, r.RunThread(context.Background(), ThreadScript{}), ErrNoThread)
}

func TestLoadScript(t *testing.T) {
	script := loadScript(t, `
threads:
  - path: [{function: f, block: entry}]
  - name: named
    path: [{function: f, block: entry, from: 1, to: 2}]
`)

	require.Len(t, script.Threads, 2)
	assert.Equal(t, "thread0", script.Threads[0].Name)
	assert.Equal(t, "named", script.Threads[1].Name)
	assert.Equal(t, Step{Function: "f", Block: "entry", From: 1, To: 2}, script.Threads[1].Path[0])

	tests := []struct {
		name   string
		source string
	}{
		{"missing block", "threads: [{path: [{function: f}]}]"},
		{"reversed range", "threads: [{path: [{function: f, block: b, from: 3, to: 1}]}]"},
		{"negative range", "threads: [{path: [{function: f, block: b, from: -1}]}]"},
		{"not yaml", "threads: ["},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := LoadScript(strings.NewReader(test.source))
			assert.ErrorIs(t, err, ErrInvalidScript)
		})
	}
}

func TestZeroExtend(t *testing.T) {
	tests := []struct {
		value    int64
		width    int
		expected int64
	}{
		{-1, 1, 1},
		{-1, 8, 255},
		{-5, 32, 4294967291},
		{-5, 64, -5},
		{300, 8, 44},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, zeroExtend(test.value, test.width), "%v as i%v", test.value, test.width)
	}
}
