package compiler

import (
	"testing"

	"github.com/roach88/collcheck/internal/config"
	"github.com/roach88/collcheck/internal/ir"
	"github.com/roach88/collcheck/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, text string) *ir.Module {
	t.Helper()
	m, err := ir.Parse(text)
	require.NoError(t, err)
	return m
}

func TestVerifyFixtures(t *testing.T) {
	for name, text := range map[string]string{
		"async":     testutil.AsyncSendRecvProgram,
		"upstream":  testutil.UpstreamGroupSendRecvProgram,
		"sync":      testutil.SyncSendRecvProgram,
		"deadlock":  testutil.DeadlockProgram,
		"pairs":     testutil.ExplicitPairsProgram,
		"parameter": testutil.ParameterProgram,
	} {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, Verify(mustParse(t, text)))
		})
	}
}

const asyncWrappingAdd = `HloModule bad_async

wrapped {
  p0 = f32[] parameter(0)
  p1 = token[] parameter(1)
  twice = f32[] add(p0, p0)
  ROOT s = (f32[], u32[], token[]) send(twice, p1), channel_id=1
}

ENTRY main {
  x = f32[] constant(1)
  tok = token[] after-all()
  start = ((f32[], token[]), (f32[], u32[], token[]), s32[]) async-start(x, tok), calls=wrapped
  done = (f32[], u32[], token[]) async-done(start)
  r = (f32[], u32[], token[]) recv(tok), channel_id=1
  rd = (f32[], token[]) recv-done(r), channel_id=1
  ROOT v = f32[] get-tuple-element(rd), index=0
}
`

const asyncWithoutDone = `HloModule no_done

wrapped {
  p0 = f32[] parameter(0)
  p1 = token[] parameter(1)
  ROOT s = (f32[], u32[], token[]) send(p0, p1), channel_id=1
}

ENTRY main {
  x = f32[] constant(1)
  tok = token[] after-all()
  start = ((f32[], token[]), (f32[], u32[], token[]), s32[]) async-start(x, tok), calls=wrapped
  r = (f32[], u32[], token[]) recv(tok), channel_id=1
  rd = (f32[], token[]) recv-done(r), channel_id=1
  ROOT v = f32[] get-tuple-element(rd), index=0
}
`

func TestVerifyErrors(t *testing.T) {
	tests := []struct {
		name    string
		program string
		code    ir.StructuralErrorCode
		message string
	}{
		{
			name:    "send without recv",
			program: testutil.UnmatchedChannelProgram,
			code:    ir.ErrUnmatchedChannel,
			message: "channel 3 has a send but no matching recv",
		},
		{
			name: "operand shapes differ",
			program: `HloModule m
ENTRY main {
  a = f32[] constant(1)
  b = s32[] constant(2)
  ROOT c = f32[] add(a, b)
}`,
			code:    ir.ErrShapeMismatch,
			message: "operand shapes differ: f32[] vs s32[]",
		},
		{
			name: "declared shape disagrees",
			program: `HloModule m
ENTRY main {
  a = f32[] constant(1)
  ROOT c = f32[2] add(a, a)
}`,
			code:    ir.ErrShapeMismatch,
			message: "declared shape f32[2], inferred f32[]",
		},
		{
			name: "channel data shapes differ",
			program: `HloModule m
ENTRY main {
  tok = token[] after-all()
  x = f32[] constant(1)
  s = (f32[], u32[], token[]) send(x, tok), channel_id=1
  r = (s32[], u32[], token[]) recv(tok), channel_id=1
  sd = token[] send-done(s), channel_id=1
  ROOT rd = (s32[], token[]) recv-done(r), channel_id=1
}`,
			code:    ir.ErrShapeMismatch,
			message: "channel 1 sends f32[] but receives s32[]",
		},
		{
			name: "two sends on one channel",
			program: `HloModule m
ENTRY main {
  tok = token[] after-all()
  x = f32[] constant(1)
  s1 = (f32[], u32[], token[]) send(x, tok), channel_id=1
  s2 = (f32[], u32[], token[]) send(x, tok), channel_id=1
  ROOT r = (f32[], u32[], token[]) recv(tok), channel_id=1
}`,
			code:    ir.ErrUnmatchedChannel,
			message: "channel 1 has more than one send (s1 and s2)",
		},
		{
			name: "transfers without done operations",
			program: `HloModule m
ENTRY main {
  tok = token[] after-all()
  x = f32[] constant(1)
  s = (f32[], u32[], token[]) send(x, tok), channel_id=5
  r = (f32[], u32[], token[]) recv(tok), channel_id=5
  ROOT id = u32[] replica-id()
}`,
			code:    ir.ErrUnmatchedChannel,
			message: "send must have exactly one user, its send-done; found 0",
		},
		{
			name: "recv read without recv-done",
			program: `HloModule m
ENTRY main {
  tok = token[] after-all()
  x = f32[] constant(1)
  s = (f32[], u32[], token[]) send(x, tok), channel_id=5
  sd = token[] send-done(s), channel_id=5
  r = (f32[], u32[], token[]) recv(tok), channel_id=5
  ROOT v = f32[] get-tuple-element(r), index=0
}`,
			code:    ir.ErrUnmatchedChannel,
			message: "r may only be used by recv-done, not get-tuple-element",
		},
		{
			name: "recv only in an uncalled computation",
			program: `HloModule m
orphan {
  t = token[] after-all()
  r = (f32[], u32[], token[]) recv(t), channel_id=5
  ROOT rd = (f32[], token[]) recv-done(r), channel_id=5
}

ENTRY main {
  tok = token[] after-all()
  x = f32[] constant(1)
  s = (f32[], u32[], token[]) send(x, tok), channel_id=5
  ROOT sd = token[] send-done(s), channel_id=5
}`,
			code:    ir.ErrUnmatchedChannel,
			message: "channel 5 has a send but no matching recv",
		},
		{
			name: "recv without channel",
			program: `HloModule m
ENTRY main {
  tok = token[] after-all()
  ROOT r = (f32[], u32[], token[]) recv(tok)
}`,
			code:    ir.ErrBadAttribute,
			message: "recv requires channel_id",
		},
		{
			name: "recv-done of a send",
			program: `HloModule m
ENTRY main {
  tok = token[] after-all()
  x = f32[] constant(1)
  s = (f32[], u32[], token[]) send(x, tok), channel_id=1
  ROOT rd = (f32[], token[]) recv-done(s), channel_id=1
}`,
			code:    ir.ErrShapeMismatch,
			message: "recv-done operand must be a recv",
		},
		{
			name: "data cycle",
			program: `HloModule m
ENTRY main {
  a = token[] after-all(b)
  b = token[] after-all(a)
  ROOT out = token[] after-all(a, b)
}`,
			code:    ir.ErrCycle,
			message: "dependency cycle",
		},
		{
			name: "control cycle",
			program: `HloModule m
ENTRY main {
  a = token[] after-all(), control-predecessors={b}
  b = token[] after-all(a)
  ROOT out = token[] after-all(b)
}`,
			code:    ir.ErrCycle,
			message: "dependency cycle",
		},
		{
			name:    "non-collective in async group",
			program: asyncWrappingAdd,
			code:    ir.ErrAsyncGroup,
			message: "add cannot be wrapped in an async group",
		},
		{
			name:    "async-start without async-done",
			program: asyncWithoutDone,
			code:    ir.ErrAsyncGroup,
			message: "async-start needs exactly one async-done, found 0",
		},
		{
			name: "entry layout result",
			program: `HloModule m, entry_computation_layout={()->f32[]}
ENTRY main {
  ROOT a = s32[] constant(1)
}`,
			code:    ir.ErrLayout,
			message: "result is s32[], declared f32[]",
		},
		{
			name: "parameter numbering gap",
			program: `HloModule m
ENTRY main {
  a = f32[] parameter(0)
  ROOT b = f32[] parameter(2)
}`,
			code:    ir.ErrShapeMismatch,
			message: "without gaps or repeats, got 2",
		},
		{
			name: "unknown opcode",
			program: `HloModule m
ENTRY main {
  a = f32[] constant(1)
  ROOT b = f32[] frobnicate(a)
}`,
			code:    ir.ErrUnknownOpcode,
			message: `unknown opcode "frobnicate"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(mustParse(t, tt.program))
			require.Error(t, err)
			var se *ir.StructuralError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.code, se.Code, "error: %v", err)
			assert.Contains(t, se.Message, tt.message)
		})
	}
}

func TestVerifyTrustsUnloweredOpcodes(t *testing.T) {
	m := mustParse(t, `HloModule m
ENTRY main {
  a = f32[] constant(1)
  ROOT b = (f32[], s32[]) custom-call(a), custom_call_target="opaque"
}`)
	assert.NoError(t, Verify(m))
}

func TestVerifyAfterCompile(t *testing.T) {
	m := mustParse(t, testutil.ParameterProgram)
	_, err := Compile(m, config.MustBuild(2))
	require.NoError(t, err)
	assert.ErrorIs(t, Verify(m), ir.ErrModuleConsumed)
}
