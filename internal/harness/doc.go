// Package harness runs replica-parallel collective scenarios and judges them.
//
// A scenario names a program, a replica count and optional inputs and
// expected outputs. Run takes it through five stages:
//
//  1. Build the execution configuration (config.Build).
//  2. Load the program: parse and verify it (LoadProgram).
//  3. Ask the device guard whether the replicas can be placed. If not, the
//     outcome is a skip, never a failure.
//  4. Compile and execute on every replica in parallel (Execute).
//  5. Check that every replica succeeded with well-typed outputs equal to
//     the expectation (AssertSuccess).
//
// # Scenario Format
//
// Scenarios are YAML, CUE or HCL files validated against the embedded CUE
// schema #Scenario:
//
//	name: async_send_recv
//	description: two channels inside one async group
//	replicas: 4
//	run_passes: true
//	program_file: programs/async_send_recv.hlo
//	pairing: ring
//	timeout: 10s
//	expect:
//	  all_replicas: [1.0, 2.0]
//	  tolerance: {abs: 1e-6}
//
// inputs and expect take either all_replicas (one list used by every replica)
// or per_replica (one list per replica). Values are written in document form:
// numbers, bools, "nan"/"inf" strings and nested lists for arrays and tuples.
//
// In Go tests, RunT turns a skip into t.Skipf and a failure into t.Errorf.
package harness
