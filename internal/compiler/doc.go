// Package compiler builds store definitions from declarative files.
//
// A definition file is CUE (.cue), YAML (.yaml, .yml) or JSON (.json) with
// these top-level fields:
//
//	initialState:       { count: 0, enemies: [] }
//	nonBindedStateKeys: ["cache"]
//	actions: {
//		increment: [{inc: "count"}]
//		addEnemy:  [{push: "enemies", from: "payload"}]
//		killEnemy: [{remove: "enemies", where: "id", from: "payload.id"}]
//		reset:     [{set: "count", value: 0}, {clear: "enemies"}]
//	}
//	computed: { hasEnemies: "!!enemies.length" }
//
// Each action is a list of operations applied in order to the live state.
// An operation names exactly one verb whose argument is a dotted state path:
//
//	set     write value|from at path, creating intermediate maps
//	inc     add by (default 1) or from to the number at path
//	toggle  negate the truthiness of path
//	push    append value|from to the list at path
//	remove  drop list items whose `where` field (or the item itself) equals value|from
//	clear   empty the list or map at path
//	delete  remove the key at path
//
// `from` is a selector evaluated against {payload: <payload>, state: <state>}.
// Every `computed` selector is evaluated against the state after each action
// and written to its key.
package compiler
