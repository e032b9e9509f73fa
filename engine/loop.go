package engine

// LoopScope is a named bounded counter resident in the record, so loop
// progress survives checkpoint and resume. The counter counts completed
// repair passes: a scope with Max n allows n re-entries of the loop body
// after the initial pass.
type LoopScope struct {
	// Field is the overwrite-policy record field holding the counter.
	Field string
	// Max is the bound; Exhausted reports true once the counter reaches it.
	Max int
}

// Enter returns the partial that resets the counter to zero. Nested loops
// call Enter on the inner scope at each outer subtask entry.
func (l LoopScope) Enter() Partial {
	return Partial{l.Field: 0}
}

// Count reads the counter from the record; absent means zero.
func (l LoopScope) Count(rec Record) int {
	return rec.Int(l.Field)
}

// Next returns the partial that advances the counter by one.
func (l LoopScope) Next(rec Record) Partial {
	return Partial{l.Field: rec.Int(l.Field) + 1}
}

// Exhausted reports whether the bound has been reached. At count Max-1 a
// router may still re-enter the loop body; at Max it must route onward.
func (l LoopScope) Exhausted(rec Record) bool {
	return rec.Int(l.Field) >= l.Max
}

// Remaining returns how many re-entries the scope still allows.
func (l LoopScope) Remaining(rec Record) int {
	if r := l.Max - l.Count(rec); r > 0 {
		return r
	}
	return 0
}
