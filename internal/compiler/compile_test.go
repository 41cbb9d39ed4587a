package compiler

import (
	"testing"

	"github.com/roach88/collcheck/internal/config"
	"github.com/roach88/collcheck/internal/ir"
	"github.com/roach88/collcheck/internal/testutil"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileAsyncSendRecv(t *testing.T) {
	exec, err := Compile(mustParse(t, testutil.AsyncSendRecvProgram), config.MustBuild(4))
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2}, exec.Channels())
	assert.Empty(t, exec.ParameterShapes())
	assert.Equal(t, "(f32[], f32[])", exec.OutputShape().String())
	assert.Len(t, exec.Passes(), 2)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "async_executable", []byte(exec.String()))
}

func TestCompileWithoutPasses(t *testing.T) {
	m := mustParse(t, testutil.AsyncSendRecvProgram)
	exec, err := Compile(m, config.MustBuild(2, config.WithRunPasses(false)))
	require.NoError(t, err)
	assert.Empty(t, exec.Passes())
	assert.Len(t, m.Entry.Instructions, 21, "module is left as written")

	s := exec.Schedule(m.Entry)
	tuple1 := m.Entry.Instruction("recv-done-tuple1")
	require.Len(t, s.Waits[tuple1], 1)
	assert.Equal(t, "async-comp-done", s.Waits[tuple1][0].Name, "waiting on async-start means waiting for its completion")
}

func TestCompileOwnership(t *testing.T) {
	m := mustParse(t, testutil.ParameterProgram)
	cfg := config.MustBuild(1)
	_, err := Compile(m, cfg)
	require.NoError(t, err)

	_, err = Compile(m, cfg)
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeOwnership, ce.Code)
	assert.ErrorIs(t, err, ir.ErrModuleConsumed)
}

func TestCompileVerifyFailure(t *testing.T) {
	_, err := Compile(mustParse(t, testutil.UnmatchedChannelProgram), config.MustBuild(2))
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeVerify, ce.Code)
	assert.True(t, ir.IsStructuralError(err, ir.ErrUnmatchedChannel))
}

func TestCompileUnsupported(t *testing.T) {
	m := mustParse(t, `HloModule m
ENTRY main {
  a = f32[] constant(1)
  ROOT b = f32[] all-reduce(a), to_apply=sum
}`)
	_, err := Compile(m, config.MustBuild(2))
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeUnsupported, ce.Code)
	assert.Equal(t, "b", ce.Instruction)
	assert.Contains(t, ce.Error(), "all-reduce has no lowering")
}

func TestCompileRoutes(t *testing.T) {
	tests := []struct {
		name     string
		program  string
		replicas int
		opts     []config.Option
		channel  int64
		target   map[int]int
		source   map[int]int
	}{
		{
			name:     "ring",
			program:  testutil.SyncSendRecvProgram,
			replicas: 3,
			channel:  7,
			target:   map[int]int{0: 1, 1: 2, 2: 0},
			source:   map[int]int{0: 2, 1: 0, 2: 1},
		},
		{
			name:     "reverse ring",
			program:  testutil.SyncSendRecvProgram,
			replicas: 3,
			opts:     []config.Option{config.WithPairing(config.PairingReverseRing)},
			channel:  7,
			target:   map[int]int{0: 2, 1: 0, 2: 1},
			source:   map[int]int{0: 1, 1: 2, 2: 0},
		},
		{
			name:     "self",
			program:  testutil.SyncSendRecvProgram,
			replicas: 2,
			opts:     []config.Option{config.WithPairing(config.PairingSelf)},
			channel:  7,
			target:   map[int]int{0: 0, 1: 1},
			source:   map[int]int{0: 0, 1: 1},
		},
		{
			name:     "explicit pairs override the policy",
			program:  testutil.ExplicitPairsProgram,
			replicas: 4,
			opts:     []config.Option{config.WithPairing(config.PairingSelf)},
			channel:  4,
			target:   map[int]int{0: 1},
			source:   map[int]int{1: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, err := Compile(mustParse(t, tt.program), config.MustBuild(tt.replicas, tt.opts...))
			require.NoError(t, err)
			route, ok := exec.Route(tt.channel)
			require.True(t, ok)
			assert.Equal(t, tt.target, route.Target)
			assert.Equal(t, tt.source, route.Source)
		})
	}
}

func TestCompileInvalidPairs(t *testing.T) {
	tests := []struct {
		name    string
		pairs   string
		message string
	}{
		{"out of range", "{{0,1}}", "source-target pair {0,1} outside 1 replicas"},
		{"duplicate source", "{{0,0},{0,0}}", "replica 0 sends twice on one channel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			program := `HloModule m
ENTRY main {
  tok = token[] after-all()
  x = f32[] constant(1)
  s = (f32[], u32[], token[]) send(x, tok), channel_id=1, frontend_attributes={_xla_send_recv_source_target_pairs="` + tt.pairs + `"}
  r = (f32[], u32[], token[]) recv(tok), channel_id=1
  sd = token[] send-done(s), channel_id=1
  ROOT rd = (f32[], token[]) recv-done(r), channel_id=1
}`
			_, err := Compile(mustParse(t, program), config.MustBuild(1))
			require.Error(t, err)
			var ce *CompileError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, ErrCodePairing, ce.Code)
			assert.Contains(t, ce.Message, tt.message)
		})
	}
}

func TestScheduleHonoursControlEdges(t *testing.T) {
	m := mustParse(t, testutil.DeadlockProgram)
	exec, err := Compile(m, config.MustBuild(2, config.WithRunPasses(false)))
	require.NoError(t, err)

	s := exec.Schedule(m.Entry)
	order := names(s.Order)
	assert.Equal(t, []string{"tok", "recv", "recv-done", "data", "send", "send-done", "value", "out"}, order)
	send := m.Entry.Instruction("send")
	assert.Equal(t, []string{"recv-done"}, names(s.Waits[send]))
}

func TestScheduleReordersForControlEdges(t *testing.T) {
	m := mustParse(t, `HloModule m
ENTRY main {
  a = f32[] constant(1), control-predecessors={b}
  b = f32[] constant(2)
  ROOT out = (f32[], f32[]) tuple(a, b)
}`)
	exec, err := Compile(m, config.MustBuild(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "out"}, names(exec.Schedule(m.Entry).Order))
}
