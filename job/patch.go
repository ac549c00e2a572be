package job

import "encoding/json"

// Opt is a field that is either absent (leave the stored value unchanged) or
// present with a value. For nullable columns the element type is itself a
// pointer, so Set[*string](nil) means "present, clear to null" while the zero
// Opt means "absent, do not touch".
type Opt[T any] struct {
	Valid bool
	Value T
}

// Set returns a present Opt holding v.
func Set[T any](v T) Opt[T] {
	return Opt[T]{Valid: true, Value: v}
}

// UnmarshalJSON marks the field present. It is only invoked for keys that
// appear in the document, so an absent key leaves the zero (absent) Opt
// while an explicit null decodes to a present zero value.
func (o *Opt[T]) UnmarshalJSON(data []byte) error {
	o.Valid = true
	return json.Unmarshal(data, &o.Value)
}

// MarshalJSON encodes the held value; absent fields encode as null and
// should be skipped by the caller instead.
func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

// Patch is a partial update to a Job record. Only present fields are
// persisted; every successful apply also refreshes the record's updated_at.
type Patch struct {
	Status              Opt[Status]
	Output              Opt[*string]
	Error               Opt[*string]
	Trace               Opt[[]TraceEntry]
	Verdict             Opt[Verdict]
	ExecutionTime       Opt[*float64]
	EmbeddingsGenerated Opt[bool]
}

// IsZero reports whether the patch carries no fields at all.
func (p Patch) IsZero() bool {
	return !p.Status.Valid && !p.Output.Valid && !p.Error.Valid &&
		!p.Trace.Valid && !p.Verdict.Valid && !p.ExecutionTime.Valid &&
		!p.EmbeddingsGenerated.Valid
}
