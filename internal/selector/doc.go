// Package selector evaluates selector expressions against a state tree.
//
// A selector is a whitespace-delimited token sequence:
//
//	player.health                     dotted path
//	!menu.open                        negated path
//	!!items.length                    path coerced to a boolean
//	color == 'red'                    comparison against a literal
//	color === 'red' && !paused        comparisons and combinators
//	a || b && c                       strictly left to right, no precedence
//
// Evaluation runs in two passes. The comparison pass replaces every
// `path OP literal` triple (OP one of ==, ===, !=, !==) with a boolean. The
// combinator pass then folds the remaining tokens left to right over && and
// ||. There are no parentheses, no precedence and no short-circuit: every
// operand is resolved. Combinators yield operand values the way JavaScript
// does (`a || b` is a when a is truthy, otherwise b).
//
// # Path Resolution
//
// Segments walk maps by key and lists by index; `length` on a list yields its
// size. A missing intermediate segment is logged and the walk continues with
// null, so the next segment fails with *PathResolutionError. A missing final
// segment resolves to tree.Null.
//
// # Iteration Context
//
// Inside a rendered list item, an *Iteration redirects paths that start with
// the item alias (Iteration.For) to the matching item of the source
// collection (Iteration.In), selected by Iteration.Key and Iteration.ItemKey.
//
// # Token Memo
//
// Expressions are static per binding, so an Evaluator memoizes token
// sequences by expression string in a ristretto cache. Cache misses only cost
// a re-tokenization; results never depend on the cache.
package selector
