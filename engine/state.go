package engine

import (
	"fmt"
	"sort"

	"github.com/okhara/stagecraft/types"
)

// MergePolicy controls how a stage's partial update combines with the
// current value of a field.
type MergePolicy int

const (
	// Overwrite replaces the current value with the partial's value.
	Overwrite MergePolicy = iota
	// AppendOrdered concatenates the partial's value (treated as a
	// sequence) onto the current sequence, preserving arrival order.
	AppendOrdered
)

func (p MergePolicy) String() string {
	switch p {
	case Overwrite:
		return "overwrite"
	case AppendOrdered:
		return "append"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Record is a snapshot of workflow state. Values are JSON-compatible so
// records survive a checkpoint round-trip unchanged.
type Record map[string]any

// Partial is a stage's proposed update: a subset of schema fields.
type Partial map[string]any

// Schema declares every legal state field and its merge policy. A schema
// is fixed once built; stages cannot invent fields at runtime.
type Schema struct {
	policies map[string]MergePolicy
}

// SchemaBuilder accumulates field declarations.
type SchemaBuilder struct {
	policies map[string]MergePolicy
	err      error
}

// NewSchema starts a schema declaration.
func NewSchema() *SchemaBuilder {
	return &SchemaBuilder{policies: make(map[string]MergePolicy)}
}

// Field declares a state field with the given merge policy.
func (b *SchemaBuilder) Field(name string, policy MergePolicy) *SchemaBuilder {
	if b.err != nil {
		return b
	}
	if name == "" {
		b.err = types.NewError(types.ErrCodeSchemaViolation, "empty field name")
		return b
	}
	if _, dup := b.policies[name]; dup {
		b.err = types.NewErrorf(types.ErrCodeSchemaViolation, "field %q declared twice", name)
		return b
	}
	b.policies[name] = policy
	return b
}

// Build finalizes the schema.
func (b *SchemaBuilder) Build() (*Schema, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.policies) == 0 {
		return nil, types.NewError(types.ErrCodeSchemaViolation, "schema declares no fields")
	}
	policies := make(map[string]MergePolicy, len(b.policies))
	for k, v := range b.policies {
		policies[k] = v
	}
	return &Schema{policies: policies}, nil
}

// MustBuild is Build for statically-declared schemas where a failure is a
// programming error.
func (b *SchemaBuilder) MustBuild() *Schema {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

// Fields returns the declared field names, sorted.
func (s *Schema) Fields() []string {
	out := make([]string, 0, len(s.policies))
	for k := range s.policies {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// PolicyOf returns the merge policy for a declared field.
func (s *Schema) PolicyOf(name string) (MergePolicy, bool) {
	p, ok := s.policies[name]
	return p, ok
}

// NewRecord returns the schema's zero record: append fields start as empty
// sequences, overwrite fields are absent until first written.
func (s *Schema) NewRecord() Record {
	rec := make(Record, len(s.policies))
	for name, policy := range s.policies {
		if policy == AppendOrdered {
			rec[name] = []any{}
		}
	}
	return rec
}

// Apply merges a partial update into the current record under the schema's
// policies and returns the next record. The current record is not mutated.
// An update naming an undeclared field fails with SCHEMA_VIOLATION.
func (s *Schema) Apply(current Record, partial Partial) (Record, error) {
	next := current.Clone()
	for name, value := range partial {
		policy, ok := s.policies[name]
		if !ok {
			return nil, types.NewErrorf(types.ErrCodeSchemaViolation,
				"update for undeclared field %q", name)
		}
		switch policy {
		case Overwrite:
			next[name] = value
		case AppendOrdered:
			next[name] = append(asSequence(next[name]), asSequence(value)...)
		}
	}
	return next, nil
}

// Clone returns a copy of the record safe to hand to a stage. Sequence
// values are copied one level deep; stages must treat nested values as
// read-only.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		if seq, ok := v.([]any); ok {
			cp := make([]any, len(seq))
			copy(cp, seq)
			out[k] = cp
			continue
		}
		out[k] = v
	}
	return out
}

// asSequence normalizes a value for append-ordered merging: nil is empty,
// slices keep their elements, anything else is a singleton.
func asSequence(v any) []any {
	switch s := v.(type) {
	case nil:
		return nil
	case []any:
		return s
	case []string:
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = e
		}
		return out
	default:
		return []any{v}
	}
}

// String returns the record's string value for a field, or "".
func (r Record) String(name string) string {
	s, _ := r[name].(string)
	return s
}

// Bool returns the record's bool value for a field, or false.
func (r Record) Bool(name string) bool {
	b, _ := r[name].(bool)
	return b
}

// Int returns the record's integer value for a field. JSON decoding turns
// numbers into float64, so resumed records are handled too.
func (r Record) Int(name string) int {
	switch n := r[name].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// Strings returns an append-ordered field's elements as strings, skipping
// non-string entries.
func (r Record) Strings(name string) []string {
	seq, ok := r[name].([]any)
	if !ok {
		if ss, ok := r[name].([]string); ok {
			out := make([]string, len(ss))
			copy(out, ss)
			return out
		}
		return nil
	}
	out := make([]string, 0, len(seq))
	for _, e := range seq {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
