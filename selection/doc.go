// Package selection normalizes attribute selections and composes them.
//
// A selection maps attribute keys to constraints: unset, ALL, a single
// value, a list of values or a predicate. Values are compared as strings,
// so numbers are rendered canonically before matching.
//
//	sel, err := selection.Normalize(map[string]any{
//		"param": []string{"t", "z"},
//		"level": 500,
//	})
package selection
