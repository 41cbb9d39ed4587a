package ir

import (
	"testing"

	"github.com/roach88/collcheck/internal/shapes"
	"github.com/roach88/collcheck/internal/testutil"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAsyncSendRecv(t *testing.T) {
	m, err := Parse(testutil.AsyncSendRecvProgram)
	require.NoError(t, err)

	assert.Equal(t, "async_send_recv", m.Name)
	require.Len(t, m.Computations, 2)
	require.NotNil(t, m.Entry)
	assert.Equal(t, "main", m.Entry.Name)
	require.NotNil(t, m.EntryLayout)
	assert.Empty(t, m.EntryLayout.Parameters)
	assert.Equal(t, "(f32[], f32[])", m.EntryLayout.Result.String())

	wrapped := m.Computation("wrapped_send_recv")
	require.NotNil(t, wrapped)
	assert.False(t, wrapped.IsEntry)
	assert.Len(t, wrapped.Parameters(), 6)
	assert.Equal(t, "out", wrapped.Root.Name)

	send2 := wrapped.Instruction("send2")
	require.NotNil(t, send2)
	assert.Equal(t, OpSend, send2.Opcode)
	assert.True(t, send2.HasChannel)
	assert.Equal(t, int64(2), send2.ChannelID)
	require.Len(t, send2.Operands, 2)
	assert.Equal(t, "param2", send2.Operands[0].Name)

	start := m.Entry.Instruction("async-comp-start")
	require.NotNil(t, start)
	assert.Same(t, wrapped, start.Called)
	assert.Len(t, start.Operands, 6)
	assert.Same(t, start.Operands[1], start.Operands[3], "token fan-out shares one instruction")

	tuple1 := m.Entry.Instruction("recv-done-tuple1")
	require.Len(t, tuple1.ControlPredecessors, 1)
	assert.Same(t, start, tuple1.ControlPredecessors[0])
	assert.Len(t, tuple1.Operands, 2, "control edges are not data edges")

	gte := m.Entry.Instruction("unpack-recv-done2")
	assert.Equal(t, 3, gte.Index)
	assert.Equal(t, "out", m.Entry.Root.Name)

	data1 := m.Entry.Instruction("data1")
	require.NotNil(t, data1.Literal)
	assert.Equal(t, float32(1), data1.Literal.Value())
}

func TestParseUpstreamGroupSendRecv(t *testing.T) {
	m, err := Parse(testutil.UpstreamGroupSendRecvProgram)
	require.NoError(t, err)

	assert.Equal(t, "module_main", m.Name)
	assert.Equal(t, "out", m.Entry.Root.Name, "ROOT declared mid-body")
	last := m.Entry.Instructions[len(m.Entry.Instructions)-1]
	assert.Equal(t, "send-done2", last.Name)

	start := m.Entry.Instruction("async-comp-start")
	require.NotNil(t, start)
	assert.Equal(t, "((f32[], token[], f32[], token[], token[], token[]), "+
		"((f32[], u32[], token[]), (f32[], u32[], token[]), (f32[], u32[], token[]), (f32[], u32[], token[])), s32[])",
		start.Shape.String())
	require.Len(t, start.Operands, 6)
	assert.Equal(t, "after-all2", start.Operands[3].Name)
	assert.Same(t, start.Operands[3], start.Operands[5])

	recvDone := m.Entry.Instruction("recv-done1")
	require.Len(t, recvDone.ControlPredecessors, 1)
	assert.Same(t, start, recvDone.ControlPredecessors[0])

	again, err := Parse(m.String())
	require.NoError(t, err)
	assert.Equal(t, m.Fingerprint(), again.Fingerprint())
}

func TestPrintRoundTrip(t *testing.T) {
	for name, text := range map[string]string{
		"async":      testutil.AsyncSendRecvProgram,
		"sync":       testutil.SyncSendRecvProgram,
		"deadlock":   testutil.DeadlockProgram,
		"pairs":      testutil.ExplicitPairsProgram,
		"parameters": testutil.ParameterProgram,
	} {
		t.Run(name, func(t *testing.T) {
			m, err := Parse(text)
			require.NoError(t, err)
			assert.Equal(t, text, m.String())

			again, err := Parse(m.String())
			require.NoError(t, err)
			assert.Equal(t, m.Fingerprint(), again.Fingerprint())
		})
	}
}

func TestPrintCanonicalizes(t *testing.T) {
	const messy = `// leading comment
HloModule %messy,   is_scheduled=true

/* helper */
%helper (a: f32[], b: f32[]) -> f32[] {
  %a = f32[] parameter(0)
  %b = f32[] parameter(1)
  ROOT %sum = f32[] add(f32[] %a, f32[] %b)
}

ENTRY %main {
  %x = f32[2,2]{1,0} constant({{1, 2}, {3, 4.5}})
  ROOT %y = f32[2,2] negate(%x), metadata={op_name="neg", source_line=3}
}
`
	m, err := Parse(messy)
	require.NoError(t, err)

	helper := m.Computation("helper")
	require.NotNil(t, helper.Signature)
	assert.Equal(t, []string{"a", "b"}, helper.Signature.ParameterNames)
	assert.True(t, helper.Signature.Result.Equal(shapes.Scalar(shapes.F32)))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "messy", []byte(m.String()))
}

func TestExplicitSourceTargetPairs(t *testing.T) {
	m, err := Parse(testutil.ExplicitPairsProgram)
	require.NoError(t, err)
	send := m.Entry.Instruction("send")
	assert.Equal(t, []SourceTargetPair{{Source: 0, Target: 1}}, send.SourceTargetPairs)
	assert.Nil(t, m.Entry.Instruction("send-done").SourceTargetPairs)
}

func TestParseSourceTargetPairs(t *testing.T) {
	pairs, err := ParseSourceTargetPairs("{{0,1},{1, 2},{3,0}}")
	require.NoError(t, err)
	assert.Equal(t, []SourceTargetPair{{0, 1}, {1, 2}, {3, 0}}, pairs)
	assert.Equal(t, "{{0,1},{1,2},{3,0}}", FormatSourceTargetPairs(pairs))

	for _, bad := range []string{"{0,1}", "{{0}}", "{{a,1}}", "{{-1,0}}", "{{0,1}} x", "0"} {
		_, err := ParseSourceTargetPairs(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		code StructuralErrorCode
		msg  string
	}{
		{"no header", "ENTRY main {\n  ROOT x = f32[] constant(1)\n}\n", ErrParse, "HloModule"},
		{"no entry", "HloModule m\n\nc {\n  ROOT x = f32[] constant(1)\n}\n", ErrNoEntry, "no ENTRY"},
		{"two entries", "HloModule m\nENTRY a {\n  ROOT x = f32[] constant(1)\n}\nENTRY b {\n  ROOT x = f32[] constant(1)\n}\n", ErrNoEntry, "more than one"},
		{"duplicate computation", "HloModule m\nc {\n  ROOT x = f32[] constant(1)\n}\nENTRY c {\n  ROOT x = f32[] constant(1)\n}\n", ErrDuplicateName, "defined twice"},
		{"duplicate instruction", "HloModule m\nENTRY e {\n  x = f32[] constant(1)\n  x = f32[] constant(2)\n}\n", ErrDuplicateName, "instruction x"},
		{"unknown operand", "HloModule m\nENTRY e {\n  ROOT x = f32[] negate(y)\n}\n", ErrUnknownInstruction, `"y"`},
		{"unknown control", "HloModule m\nENTRY e {\n  ROOT x = f32[] constant(1), control-predecessors={z}\n}\n", ErrUnknownInstruction, `"z"`},
		{"unknown computation", "HloModule m\nENTRY e {\n  t = token[] after-all()\n  ROOT s = ((token[]), token[], s32[]) async-start(t), calls=missing\n}\n", ErrUnknownComputation, "missing"},
		{"two roots", "HloModule m\nENTRY e {\n  ROOT x = f32[] constant(1)\n  ROOT y = f32[] constant(2)\n}\n", ErrParse, "more than one ROOT"},
		{"bad shape", "HloModule m\nENTRY e {\n  ROOT x = q32[] constant(1)\n}\n", ErrParse, "unknown element type"},
		{"bad constant", "HloModule m\nENTRY e {\n  ROOT x = s32[] constant(1.5)\n}\n", ErrShapeMismatch, "constant"},
		{"bad channel", "HloModule m\nENTRY e {\n  t = token[] after-all()\n  ROOT r = (f32[], u32[], token[]) recv(t), channel_id=x\n}\n", ErrBadAttribute, "channel_id"},
		{"unclosed", "HloModule m\nENTRY e {\n  ROOT x = f32[] constant(1)\n", ErrParse, "not closed"},
		{"empty computation", "HloModule m\nENTRY e {\n}\n", ErrParse, "no instructions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			require.Error(t, err)
			assert.True(t, IsStructuralError(err, tt.code), "got %v", err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, err := Parse("HloModule m\nENTRY e {\n  ROOT x = f32[] negate(y)\n}\n")
	var se *StructuralError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 3, se.Line)
	assert.Equal(t, 3, se.Column)
	assert.Equal(t, "e", se.Computation)
	assert.Equal(t, "x", se.Instruction)
}

func TestModuleConsume(t *testing.T) {
	m, err := Parse(testutil.ParameterProgram)
	require.NoError(t, err)
	require.NoError(t, m.CheckLive())
	require.NoError(t, m.Consume())
	assert.ErrorIs(t, m.Consume(), ErrModuleConsumed)
	assert.ErrorIs(t, m.CheckLive(), ErrModuleConsumed)
}

func TestComputationHelpers(t *testing.T) {
	m, err := Parse(testutil.SyncSendRecvProgram)
	require.NoError(t, err)
	entry := m.Entry
	tok := entry.Instruction("tok")
	users := entry.Users(tok)
	require.Len(t, users, 2)
	assert.Equal(t, "recv", users[0].Name)
	assert.Equal(t, "send", users[1].Name)

	entry.Remove(map[*Instruction]bool{entry.Instruction("send-done"): true})
	assert.Nil(t, entry.Instruction("send-done"))
	assert.Len(t, entry.Instructions, 9)
}
