// Package harness runs scenario files against a compiled definition with
// view observers attached, and records what every dispatch did.
//
// # Scenario Format
//
//	name: scoreboard
//	description: "What this scenario checks"
//	definition: defs/game.yaml
//	observers:
//	  - name: score
//	    bind: score
//	  - name: banner
//	    toggle: gameOver
//	    property: visible
//	  - name: enemies
//	    list: { for: enemy, in: enemies, key: id, item: "hp: enemy.hp" }
//	steps:
//	  - dispatch: addScore
//	    payload: 10
//	    expect:
//	      changed: [score]
//	      notified: [score]
//	      state: { score: 10 }
//	assertions:
//	  - type: final_state
//	    select: score
//	    equals: 10
//
// Observers are attached in order and receive the initial notification
// pass before the first step. The trace records, per dispatch, the changed
// keys, the observers notified and the effective view writes. Writes that
// leave a property unchanged are not recorded.
//
// # Assertion Types
//
//   - trace_contains: an action was dispatched with a payload (subset match)
//   - trace_order: actions were dispatched in the given order
//   - trace_count: an action was dispatched exactly N times
//   - final_state: a selector evaluates to a value on the final state
//   - view: an observer's final properties or rendered list keys
//
// Failed dispatches stay in the trace with seq 0 and their error; trace
// assertions only consider committed dispatches.
//
// # Golden Files
//
// Snapshot renders the trace, final state and views as indented JSON.
// RunWithGolden compares it with testdata/golden/{name}.golden.
package harness
