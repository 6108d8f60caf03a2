// Package lazypair implements the lazy-pair zip used to align an IRC JOIN
// channel list with its optional, possibly-shorter key list.
//
// Grounded on original_source/src/util.rs's LazyZip/lazy_zip: for every
// element of A, yield (a, b) where b is the next element of B if one is
// still available, else the zero value. Unlike a generic zip, the result's
// length always matches A's length, never the shorter of the two.
package lazypair

// Pair is one element of a Zip result: an item from A plus, if present, the
// lock-step item from B.
type Pair struct {
	A string
	B string
	// HasB reports whether B came from an actual element of the b slice,
	// as opposed to being the empty-string default for an exhausted or
	// absent b.
	HasB bool
}

// Zip pairs every element of a with the lock-step element of b. If b is
// shorter than a (or nil), trailing pairs have HasB set to false. The
// result always has the same length as a.
func Zip(a []string, b []string) []Pair {
	pairs := make([]Pair, len(a))
	for i, av := range a {
		if i < len(b) {
			pairs[i] = Pair{A: av, B: b[i], HasB: true}
		} else {
			pairs[i] = Pair{A: av}
		}
	}
	return pairs
}
