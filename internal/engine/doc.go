// Package engine is the in-process replicated runtime behind the harness.
//
// A Backend compiles a module (taking ownership of it) into an Executable
// whose Execute runs one goroutine per replica. Each replica interprets the
// schedule of the entry computation sequentially. Transfers are the only
// concurrency inside a replica:
//
//   - send and recv issue a transfer and return immediately.
//   - send-done, recv-done and async-done block until their transfers have
//     completed. So does any instruction that consumes the value of an
//     unfinished transfer.
//   - async-start evaluates the called computation, which issues all of its
//     sends and recvs at once, and returns without waiting.
//   - A control predecessor is awaited before an instruction runs. For
//     asynchronous predecessors this means awaiting their completion.
//
// Replicas exchange data over unbuffered Go channels, one per
// (channel id, source replica, target replica), so every send is a
// rendezvous with exactly one recv. Every execution is bounded by the
// configured timeout: a replica still blocked when it fires fails with a
// DEADLOCK RuntimeError naming the instruction, channel and peer. After
// every replica has returned, Execute still waits for each transfer that was
// issued; one that never completes fails the execution the same way.
//
// Events are stamped by a logical Clock shared by all replicas of an
// execution, see Trace.
package engine
