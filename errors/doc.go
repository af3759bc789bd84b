// Package errors provides structured error types for the linker.
//
// Every error carries a Phase (where in the link it happened) and a Kind
// (what went wrong), so callers can match on the category with errors.Is
// instead of comparing strings:
//
//	target := &Error{Phase: PhaseResolve, Kind: KindUndefined}
//	if errors.Is(err, target) {
//	    // unresolved symbol
//	}
//
// Errors wrap their cause and unwrap with the standard library chain.
package errors
