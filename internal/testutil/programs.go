package testutil

// Program text fixtures shared by package tests.

// AsyncSendRecvProgram exchanges the constants 1.0 and 2.0 over channels 1
// and 2. Both sends and both receives are wrapped in one async-start /
// async-done group; each replica returns the pair of received floats.
// One token (after-all1) is fanned out to three wrapped operations.
const AsyncSendRecvProgram = `HloModule async_send_recv, entry_computation_layout={()->(f32[], f32[])}

wrapped_send_recv {
  param0 = f32[] parameter(0)
  param1 = token[] parameter(1)
  send1 = (f32[], u32[], token[]) send(param0, param1), channel_id=1
  param2 = f32[] parameter(2)
  param3 = token[] parameter(3)
  send2 = (f32[], u32[], token[]) send(param2, param3), channel_id=2
  param4 = token[] parameter(4)
  recv1 = (f32[], u32[], token[]) recv(param4), channel_id=1
  param5 = token[] parameter(5)
  recv2 = (f32[], u32[], token[]) recv(param5), channel_id=2
  ROOT out = ((f32[], u32[], token[]), (f32[], u32[], token[]), (f32[], u32[], token[]), (f32[], u32[], token[])) tuple(send1, send2, recv1, recv2)
}

ENTRY main {
  data1 = f32[] constant(1)
  after-all1 = token[] after-all()
  data2 = f32[] constant(2)
  after-all2 = token[] after-all()
  async-comp-start = ((f32[], token[], f32[], token[], token[], token[]), ((f32[], u32[], token[]), (f32[], u32[], token[]), (f32[], u32[], token[]), (f32[], u32[], token[])), s32[]) async-start(data1, after-all1, data2, after-all1, after-all1, after-all2), calls=wrapped_send_recv
  async-comp-done = ((f32[], u32[], token[]), (f32[], u32[], token[]), (f32[], u32[], token[]), (f32[], u32[], token[])) async-done(async-comp-start)
  unpack-recv-done1 = (f32[], u32[], token[]) get-tuple-element(async-comp-done), index=2
  recv-done-data1 = f32[] get-tuple-element(unpack-recv-done1), index=0
  recv-done-token1 = token[] get-tuple-element(unpack-recv-done1), index=2
  recv-done-tuple1 = (f32[], token[]) tuple(recv-done-data1, recv-done-token1), control-predecessors={async-comp-start}
  unpack-recv-done2 = (f32[], u32[], token[]) get-tuple-element(async-comp-done), index=3
  recv-done-data2 = f32[] get-tuple-element(unpack-recv-done2), index=0
  recv-done-token2 = token[] get-tuple-element(unpack-recv-done2), index=2
  recv-done-tuple2 = (f32[], token[]) tuple(recv-done-data2, recv-done-token2), control-predecessors={async-comp-start}
  unpack-send-done1 = (f32[], u32[], token[]) get-tuple-element(async-comp-done), index=0
  send-done1 = token[] get-tuple-element(unpack-send-done1), index=2
  unpack-send-done2 = (f32[], u32[], token[]) get-tuple-element(async-comp-done), index=1
  send-done2 = token[] get-tuple-element(unpack-send-done2), index=2
  data-out1 = f32[] get-tuple-element(recv-done-tuple1), index=0
  data-out2 = f32[] get-tuple-element(recv-done-tuple2), index=0
  ROOT out = (f32[], f32[]) tuple(data-out1, data-out2)
}
`

// UpstreamGroupSendRecvProgram is the two-channel async group in its upstream
// text form: ROOT is declared before the last instructions of ENTRY, tuple
// shapes wrap across lines, and the second send and recv2 share after-all2.
const UpstreamGroupSendRecvProgram = `
  HloModule module_main, entry_computation_layout={()->(f32[], f32[])}

  wrapped_send_recv {
    param0 = f32[] parameter(0)
    param1 = token[] parameter(1)
    send1 = (f32[], u32[], token[]) send(param0, param1), channel_id=1
    param2 = f32[] parameter(2)
    param3 = token[] parameter(3)
    send2 = (f32[], u32[], token[]) send(param2, param3), channel_id=2
    param4 = token[] parameter(4)
    recv1 = (f32[], u32[], token[]) recv(param4), channel_id=1
    param5 = token[] parameter(5)
    recv2 = (f32[], u32[], token[]) recv(param5), channel_id=2
    ROOT out = ((f32[], u32[], token[]), (f32[], u32[], token[]),
      (f32[], u32[], token[]), (f32[], u32[], token[]))
      tuple(send1, send2, recv1, recv2)
  }

  ENTRY main {
    data1 = f32[] constant(1)
    after-all1 = token[] after-all()
    data2 = f32[] constant(2)
    after-all2 = token[] after-all()
    async-comp-start = ((f32[], token[], f32[], token[], token[], token[]),
      ((f32[], u32[], token[]), (f32[], u32[], token[]), (f32[], u32[], token[]),
      (f32[], u32[], token[])), s32[]) async-start(data1, after-all1,
      data2, after-all2, after-all1, after-all2), calls=wrapped_send_recv
    async-comp-done = ((f32[], u32[], token[]), (f32[], u32[], token[]),
      (f32[], u32[], token[]), (f32[], u32[], token[])) async-done(async-comp-start)
    unpack-recv-done1 = (f32[], u32[], token[]) get-tuple-element(async-comp-done), index=2
    recv-done-data1 = f32[] get-tuple-element(unpack-recv-done1), index=0
    recv-done-token1 = token[] get-tuple-element(unpack-recv-done1), index=2
    recv-done1 = (f32[], token[]) tuple(recv-done-data1, recv-done-token1),
      control-predecessors={async-comp-start}
    data-out1 = f32[] get-tuple-element(recv-done1), index=0
    unpack-recv-done2 = (f32[], u32[], token[]) get-tuple-element(async-comp-done), index=3
    recv-done-data2 = f32[] get-tuple-element(unpack-recv-done2), index=0
    recv-done-token2 = token[] get-tuple-element(unpack-recv-done2), index=2
    recv-done2 = (f32[], token[]) tuple(recv-done-data2, recv-done-token2),
      control-predecessors={async-comp-start}
    data-out2 = f32[] get-tuple-element(recv-done2), index=0
    ROOT out = (f32[], f32[]) tuple(data-out1, data-out2)
    unpack-send-done1 = (f32[], u32[], token[]) get-tuple-element(async-comp-done), index=0
    send-done1 = token[] get-tuple-element(unpack-send-done1), index=2
    unpack-send-done2 = (f32[], u32[], token[]) get-tuple-element(async-comp-done), index=1
    send-done2 = token[] get-tuple-element(unpack-send-done2), index=2
  }

  `

// SyncSendRecvProgram sends each replica's id plus 10 to its peer with a
// plain send / recv / send-done / recv-done sequence.
const SyncSendRecvProgram = `HloModule sync_send_recv

ENTRY main {
  tok = token[] after-all()
  id = u32[] replica-id()
  ten = u32[] constant(10)
  payload = u32[] add(id, ten)
  recv = (u32[], u32[], token[]) recv(tok), channel_id=7
  send = (u32[], u32[], token[]) send(payload, tok), channel_id=7
  recv-done = (u32[], token[]) recv-done(recv), channel_id=7
  send-done = token[] send-done(send), channel_id=7
  received = u32[] get-tuple-element(recv-done), index=0
  ROOT out = (u32[], u32[]) tuple(id, received)
}
`

// DeadlockProgram waits for its receive before issuing its send, so every
// replica blocks in recv-done forever.
const DeadlockProgram = `HloModule deadlock

ENTRY main {
  tok = token[] after-all()
  recv = (f32[], u32[], token[]) recv(tok), channel_id=1
  recv-done = (f32[], token[]) recv-done(recv), channel_id=1
  data = f32[] constant(5)
  send = (f32[], u32[], token[]) send(data, tok), channel_id=1, control-predecessors={recv-done}
  send-done = token[] send-done(send), channel_id=1
  value = f32[] get-tuple-element(recv-done), index=0
  ROOT out = (f32[], token[]) tuple(value, send-done)
}
`

// UnmatchedChannelProgram has a send on channel 3 and no matching recv.
const UnmatchedChannelProgram = `HloModule unmatched

ENTRY main {
  tok = token[] after-all()
  data = f32[] constant(1)
  send = (f32[], u32[], token[]) send(data, tok), channel_id=3
  ROOT done = token[] send-done(send), channel_id=3
}
`

// ExplicitPairsProgram routes channel 4 only from replica 0 to replica 1.
// Replicas without a source receive zeros.
const ExplicitPairsProgram = `HloModule explicit_pairs

ENTRY main {
  tok = token[] after-all()
  data = f32[2] constant({3, 4})
  send = (f32[2], u32[], token[]) send(data, tok), channel_id=4, frontend_attributes={_xla_send_recv_source_target_pairs="{{0,1}}"}
  recv = (f32[2], u32[], token[]) recv(tok), channel_id=4, frontend_attributes={_xla_send_recv_source_target_pairs="{{0,1}}"}
  send-done = token[] send-done(send), channel_id=4
  recv-done = (f32[2], token[]) recv-done(recv), channel_id=4
  ROOT value = f32[2] get-tuple-element(recv-done), index=0
}
`

// ParameterProgram adds a per-replica parameter to itself.
const ParameterProgram = `HloModule parameters, entry_computation_layout={(f32[])->f32[]}

ENTRY main {
  x = f32[] parameter(0)
  ROOT twice = f32[] add(x, x)
}
`
