package engine

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NotDec/NotDec-sub000/internal/ir"
)

// memStore is an in-memory SummaryStore that counts its calls.
type memStore struct {
	mu        sync.Mutex
	summaries map[string]*ir.Summary
	runs      []*ir.Result
	hits      int
	saves     int
	failRuns  bool
}

func newMemStore() *memStore {
	return &memStore{summaries: make(map[string]*ir.Summary)}
}

func (s *memStore) LoadSummary(_ context.Context, key string) (*ir.Summary, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.summaries[key]
	if ok {
		s.hits++
	}
	return sum, ok, nil
}

func (s *memStore) SaveSummary(_ context.Context, key, _ string, sum *ir.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[key] = sum
	s.saves++
	return nil
}

func (s *memStore) RecordRun(_ context.Context, res *ir.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failRuns {
		return errors.New("disk full")
	}
	s.runs = append(s.runs, res)
	return nil
}

func newTestEngine(opts ...EngineOption) *Engine {
	base := []EngineOption{
		WithLogger(discard),
		WithRunIDGenerator(NewFixedGenerator("run-1", "run-2", "run-3")),
	}
	return New(append(base, opts...)...)
}

func value(t *testing.T, res *ir.Result, ref string) ir.ValueType {
	t.Helper()
	v, ok := res.Value(ref)
	require.True(t, ok, "no value %s", ref)
	return v
}

// loadAddProgram reads an int at offset 4 of its parameter and returns it.
func loadAddProgram() *ir.Program {
	return testProgram(ir.Function{
		Name:        "f",
		Params:      1,
		Returns:     true,
		Constraints: []string{"f.in_0 <= p", "r.load32 <= x", "x <= f.out"},
		Constants:   []ir.Constant{{Var: "four", Value: 4}},
		Arith:       []ir.Arith{{Op: ir.OpAdd, Left: "p", Right: "four", Result: "r"}},
		Cells:       map[string]string{"p": "ptr", "x": "int 32"},
		Values:      []ir.Value{{ID: "r", Var: "r"}},
	})
}

func TestEngine_New(t *testing.T) {
	e := New()
	assert.NotNil(t, e.logger)
	assert.IsType(t, UUIDv7Generator{}, e.runIDs)
	assert.Equal(t, DefaultConfig(), e.Config())
}

func TestEngine_Run_StoreThroughParameter(t *testing.T) {
	res, err := newTestEngine().Run(context.Background(), testProgram(storeCallee(), storeCaller()))
	require.NoError(t, err)

	assert.Equal(t, "run-1", res.RunID)
	assert.NotEmpty(t, res.ProgramHash)
	arg := value(t, res, "callee#arg0")
	assert.Equal(t, "int32_t *", arg.Upper)
	assert.Equal(t, uint32(4), arg.Size, "sizes are in bytes")
	assert.Equal(t, arg.Upper, value(t, res, "callee/p").Upper)
	assert.Contains(t, value(t, res, "main/q").Upper, "*", "the caller learns that q is a pointer")
	assert.Empty(t, res.Unhandled)
}

func TestEngine_Run_LoadAfterAdd(t *testing.T) {
	res, err := newTestEngine().Run(context.Background(), loadAddProgram())
	require.NoError(t, err)

	arg := value(t, res, "f#arg0")
	assert.True(t, strings.HasPrefix(arg.Upper, "struct s_"), arg.Upper)
	assert.True(t, strings.HasSuffix(arg.Upper, " *"), arg.Upper)
	require.Len(t, res.Declarations, 1, "the upper and lower bounds share one struct")
	assert.Contains(t, res.Declarations[0], "int32_t field_")
	assert.Contains(t, res.Declarations[0], "// at offset 4")
	assert.Equal(t, arg.Upper, arg.Lower)
	assert.Equal(t, "int32_t", value(t, res, "f#ret").Upper)
	assert.Equal(t, "int32_t *", value(t, res, "f/r").Upper)
}

func TestEngine_Run_StoreThroughParameterWithoutCells(t *testing.T) {
	callee := storeCallee()
	callee.Cells = nil
	res, err := newTestEngine().Run(context.Background(), testProgram(callee, storeCaller()))
	require.NoError(t, err)

	arg := value(t, res, "callee#arg0")
	assert.Equal(t, "int32_t *", arg.Upper, "storing through p makes it a pointer")
	assert.Equal(t, uint32(4), arg.Size)
	assert.Contains(t, value(t, res, "main/q").Upper, "*")
}

func TestEngine_Run_LoadAfterAddWithoutCells(t *testing.T) {
	p := loadAddProgram()
	p.Functions[0].Cells = nil
	res, err := newTestEngine().Run(context.Background(), p)
	require.NoError(t, err)

	arg := value(t, res, "f#arg0")
	assert.True(t, strings.HasPrefix(arg.Upper, "struct s_"), arg.Upper)
	assert.True(t, strings.HasSuffix(arg.Upper, " *"), arg.Upper)
	require.Len(t, res.Declarations, 1)
	assert.Contains(t, res.Declarations[0], "// at offset 4")
	assert.True(t, strings.HasSuffix(value(t, res, "f/r").Upper, " *"))

	// Nothing says the loaded word is a number rather than an address.
	ret := value(t, res, "f#ret")
	assert.Equal(t, "undefined32", ret.Upper)
	assert.Equal(t, uint32(4), ret.Size)
}

func TestByteSize(t *testing.T) {
	tests := []struct {
		bits, want uint32
	}{
		{0, 0}, {1, 1}, {8, 1}, {16, 2}, {32, 4}, {64, 8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, byteSize(tt.bits), "%d bits", tt.bits)
	}
}

func TestEngine_Run_ValuesSorted(t *testing.T) {
	res, err := newTestEngine().Run(context.Background(), testProgram(storeCallee(), storeCaller()))
	require.NoError(t, err)

	var refs []string
	for _, v := range res.Values {
		refs = append(refs, v.Value)
	}
	assert.IsIncreasing(t, refs)
}

func TestEngine_Run_InvalidProgram(t *testing.T) {
	p := testProgram(ir.Function{Name: "f"}, ir.Function{Name: "f"})
	_, err := newTestEngine().Run(context.Background(), p)

	var ae *AnalysisError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ErrCodeInvalidProgram, ae.Code)
	assert.Contains(t, ae.Message, "duplicate function name")
	assert.True(t, IsInputError(err))
}

func TestEngine_Run_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestEngine().Run(ctx, testProgram(storeCallee()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_Run_UnhandledCalls(t *testing.T) {
	caller := storeCaller()
	caller.Calls = append(caller.Calls, ir.Call{ID: "c1", Args: []string{"q"}})
	res, err := newTestEngine().Run(context.Background(), testProgram(storeCallee(), caller))
	require.NoError(t, err)

	assert.Equal(t, []ir.UnhandledCall{{Caller: "main", Call: "main/c1", Reason: "indirect call"}}, res.Unhandled)
}

func TestEngine_Run_DisableInterproc(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DisableInterproc = true
	res, err := newTestEngine(WithConfig(cfg)).Run(context.Background(), testProgram(storeCallee(), storeCaller()))
	require.NoError(t, err)

	assert.Equal(t, "int32_t *", value(t, res, "callee#arg0").Upper)
	assert.NotContains(t, value(t, res, "main/q").Upper, "*")
	require.Len(t, res.Unhandled, 1)
	assert.Equal(t, "no summary for callee", res.Unhandled[0].Reason)
}

func TestEngine_Run_SummaryOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "summaries.json")
	data, err := json.Marshal(ir.SummaryFile{
		"ext": {
			Constraints: []string{"ext.in_0.load64 <= #int64"},
			PNIMap:      map[string]string{"ext.in_0": "ptr"},
		},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	p := testProgram(
		ir.Function{Name: "ext", Declaration: true, Params: 1},
		ir.Function{
			Name:   "main",
			Values: []ir.Value{{ID: "q", Var: "q"}},
			Calls:  []ir.Call{{ID: "c0", Callee: "ext", Args: []string{"q"}}},
		},
	)
	cfg := DefaultConfig()
	cfg.SummaryOverride = path
	res, err := newTestEngine(WithConfig(cfg)).Run(context.Background(), p)
	require.NoError(t, err)

	assert.Empty(t, res.Unhandled)
	assert.Contains(t, value(t, res, "main/q").Upper, "*")
}

func TestEngine_Run_BadOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SummaryOverride = filepath.Join(t.TempDir(), "missing.json")
	_, err := newTestEngine(WithConfig(cfg)).Run(context.Background(), testProgram(storeCallee()))

	var ae *AnalysisError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ErrCodeOverride, ae.Code)
}

func TestEngine_Run_CachesSummaries(t *testing.T) {
	st := newMemStore()
	e := newTestEngine(WithStore(st))
	p := testProgram(storeCallee(), storeCaller())

	first, err := e.Run(context.Background(), p)
	require.NoError(t, err)
	saves := st.saves
	require.NotZero(t, saves)
	assert.Zero(t, st.hits)

	second, err := e.Run(context.Background(), p)
	require.NoError(t, err)
	assert.NotZero(t, st.hits)
	assert.Equal(t, saves, st.saves, "a cache hit is not saved again")

	assert.Equal(t, first.Values, second.Values)
	require.Len(t, st.runs, 2)
	assert.Equal(t, "run-1", st.runs[0].RunID)
	assert.Equal(t, "run-2", st.runs[1].RunID)
}

func TestEngine_Run_RecordFailureIsNotFatal(t *testing.T) {
	st := newMemStore()
	st.failRuns = true
	res, err := newTestEngine(WithStore(st)).Run(context.Background(), testProgram(storeCallee()))
	require.NoError(t, err)
	assert.NotNil(t, res)
}

func TestEngine_Run_DebugDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DebugDir = t.TempDir()
	_, err := newTestEngine(WithConfig(cfg)).Run(context.Background(), testProgram(storeCallee()))
	require.NoError(t, err)

	for _, name := range []string{"bottom-up.dot", "bottom-up.txt", "bottom-up.values.txt"} {
		assert.FileExists(t, filepath.Join(cfg.DebugDir, "run-1", "callee", name))
	}
}

func TestEngine_RunFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.json")
	data, err := json.Marshal(loadAddProgram())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	res, err := newTestEngine().RunFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "int32_t", value(t, res, "f#ret").Upper)

	_, err = newTestEngine().RunFile(context.Background(), filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestSameFuncs(t *testing.T) {
	assert.True(t, sameFuncs([]string{"a", "b"}, []string{"b", "a"}))
	assert.False(t, sameFuncs([]string{"a"}, []string{"a", "b"}))
}
