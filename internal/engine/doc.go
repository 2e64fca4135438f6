// Package engine implements the staked resolution core: a per-pool stake
// ledger, aggregate pool accounting, pluggable resolution policies, and the
// settlement state machine (open -> locked -> resolved, or open -> cancelled).
//
// The engine is pure and synchronous. It performs no I/O, never reads the
// wall clock (every operation takes an explicit "now"), and reports every
// caller-triggerable failure as a typed error from the domain package. The
// hosting layer is responsible for serializing mutations per pool and for
// persisting the mutated state; see the service package.
package engine
