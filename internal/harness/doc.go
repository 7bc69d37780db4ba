// Package harness runs import scenarios end to end.
//
// A scenario describes an archive, the record types that have an importer,
// and what a complete run should produce. The harness drives the real
// engine over an in-memory store with a fake clock and fixed invocation
// IDs, running invocations until the stage reaches finalize, so results
// are identical on every run and can be compared against golden files.
//
// # Scenario Format
//
//	name: end_to_end
//	description: "What this scenario validates"
//	order: [terms, posts]
//	budget: 10s          # per-invocation budget, default unlimited
//	record_cost: 1s      # fake time each import takes
//	fail_import: [posts/3.json]
//	entries:
//	  - name: terms/1.json
//	    body: '{"id": 1, "taxonomy": "category", "name": "News"}'
//	assertions:
//	  - type: dispatched
//	    paths: [terms/1.json]
//	  - type: events
//	    level: warning
//	    count: 2
//	  - type: final_stage
//	    stage: finalize
//
// # Assertion Types
//
//   - dispatched: importers received exactly these paths, in order
//   - dispatch_count: path was dispatched exactly count times
//   - events: count events of level (and code, if given) were logged
//   - final_stage: the persisted stage after the last invocation
//   - invocations: the run took exactly count invocations
package harness
