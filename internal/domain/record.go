package domain

import "maps"

// Record is a single app or user. Only the collection's id field has meaning
// to the store; everything else is passed through untouched.
type Record map[string]any

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

// ID returns the string value of field, or false when it is missing or not a string.
func (r Record) ID(field string) (string, bool) {
	v, ok := r[field]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Merge returns a copy of r with every key of partial applied on top.
// Keys absent from partial keep their current value.
func (r Record) Merge(partial Record) Record {
	merged := make(Record, len(r)+len(partial))
	maps.Copy(merged, r)
	maps.Copy(merged, partial)
	return merged
}
