// Package engine implements interprocedural type recovery.
//
// The engine receives a lifted program (ir.Program), builds one constraint
// graph per call-graph SCC and recovers a C type for every tracked value.
//
// ARCHITECTURE:
//
// Bottom-up pass:
// SCCs are visited in post order. Each SCC's functions are turned into a
// graph (BuildFunction), every call to another SCC gets a fresh instance of
// the callee's summary (InstantiateSummary), and the graph is saturated.
// GenSummary then reads the constraints between the SCC's functions off the
// saturated graph for use by its callers.
//
// Top-down pass:
// SCCs are visited in reverse order. The call instances of every caller
// are determinized into a signature (MultiGraphDeterminizeTo), linked under
// the SCC's functions and saturated again, so argument types flow from
// callers into callees.
//
// Global memory:
// The MEMORY nodes of all top-down graphs are determinized into one graph
// describing the emulated linear memory.
//
// Post-processing:
// Each final graph is turned into sketches (GenSketch at level 0,
// Determinize and Minimize at levels 1 and 2), cycles of offsets become
// arrays (EliminateCycle), and package layout organizes and renders the
// result.
//
// Every pass is single-threaded and deterministic: SCCs, nodes and edges
// are always visited in a fixed order and fresh names come from the run's
// schema.Namer.
//
// Soft failures (indirect calls, callees without a summary) are recorded
// as unhandled calls and never stop a run. Invariant violations abort the
// run with an *AnalysisError.
package engine
