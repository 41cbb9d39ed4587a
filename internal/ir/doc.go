// Package ir is the in-memory form of a program: a module of named
// computations whose instructions are connected by data edges (operands) and
// ordering-only control edges (control predecessors).
//
// Parse turns program text into a *Module and resolves every name. It does
// not check shapes: that is the verifier's job in package compiler. String
// renders a module back into canonical text, which is also what Fingerprint
// hashes.
//
// Grammar (informally):
//
//	module      := "HloModule" name {"," key "=" value} computation+
//	computation := ["ENTRY"] name [signature] "{" instruction+ "}"
//	instruction := ["ROOT"] name "=" shape opcode "(" operands ")" {"," key "=" value}
//
// Names may contain letters, digits, '_', '.' and '-', and may carry a '%'
// prefix. Comments use // and /* */.
package ir
