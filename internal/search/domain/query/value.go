package query

import (
	"encoding/json"
	"fmt"
)

// Kind is the type tag of a Value.
type Kind int

const (
	KindInvalid Kind = iota
	KindString
	KindInt
	KindBool
)

// Value is a typed scalar used by exact-match clauses. The zero Value is
// invalid and is rejected by Validate.
type Value struct {
	kind Kind
	str  string
	num  int64
	flag bool
}

// String returns a keyword value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Int returns a numeric value.
func Int(n int64) Value { return Value{kind: KindInt, num: n} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, flag: b} }

// Kind returns the type tag.
func (v Value) Kind() Kind { return v.kind }

// Str returns the string payload.
func (v Value) Str() string { return v.str }

// Int64 returns the numeric payload.
func (v Value) Int64() int64 { return v.num }

// BoolValue returns the boolean payload.
func (v Value) BoolValue() bool { return v.flag }

// Interface returns the payload as a plain Go value.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return v.num
	case KindBool:
		return v.flag
	}
	return nil
}

func (v Value) String() string {
	return fmt.Sprint(v.Interface())
}

// MarshalJSON encodes the payload without its tag.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindInvalid {
		return nil, fmt.Errorf("query: cannot encode invalid value")
	}
	return json.Marshal(v.Interface())
}
