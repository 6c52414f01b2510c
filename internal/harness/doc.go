// Package harness runs end-to-end type recovery scenarios.
//
// A scenario names an input program, optional engine configuration and
// overrides, and assertions about the recovered types. The harness runs
// the engine against a fresh in-memory store with a fixed run id, checks
// the assertions and can snapshot the result into a golden file.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: store_through_param
//	description: "callee stores an int through its argument"
//	program: programs/store.cue     # or inline CUE/JSON under source:
//	summary_override: overrides/ext.json
//	config:
//	  postprocess_level: 2
//	run_id: "scenario-run-1"
//	assertions:
//	  - type: value_type
//	    value: "callee#arg0"
//	    upper: "int32_t *"
//	  - type: value_contains
//	    value: "main/q"
//	    contains: "*"
//	  - type: declaration_contains
//	    contains: "// at offset 4"
//	  - type: unhandled_call
//	    call: "main/c1"
//	    reason: "indirect call"
//	  - type: unhandled_count
//	    count: 1
//	  - type: memory_type
//	    contains: "struct"
//
// A scenario may instead expect the run to fail:
//
//	expect_error: INVALID_PROGRAM
//
// # Deterministic Testing
//
// Every run uses a fixed run id (testutil.FixedRunIDGenerator) and a
// discard logger, so the same scenario produces byte-identical snapshots.
// The run is recorded into the in-memory store and read back; a stored run
// that differs from the returned one fails the scenario.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/store.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(context.Background(), scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
