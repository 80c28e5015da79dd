// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package record

import (
	"fmt"
	"time"
)

// Value is a single typed field. Every value, including null, carries
// its type. Values are immutable.
type Value struct {
	typ  Type
	null bool
	b    bool
	i    int64
	f    float64
	// s holds String and JSON values.
	s string
	t time.Time
}

// Null returns the null value of type t.
func Null(t Type) Value { return Value{typ: t, null: true} }

// BoolValue returns a Boolean value.
func BoolValue(b bool) Value { return Value{typ: Boolean, b: b} }

// LongValue returns a Long value.
func LongValue(i int64) Value { return Value{typ: Long, i: i} }

// DoubleValue returns a Double value.
func DoubleValue(f float64) Value { return Value{typ: Double, f: f} }

// StringValue returns a String value.
func StringValue(s string) Value { return Value{typ: String, s: s} }

// TimestampValue returns a Timestamp value.
func TimestampValue(t time.Time) Value { return Value{typ: Timestamp, t: t} }

// JSONValue returns a JSON value holding the serialized document doc.
func JSONValue(doc string) Value { return Value{typ: JSON, s: doc} }

// Type returns the value's type.
func (v Value) Type() Type { return v.typ }

// IsNull tells whether v is null.
func (v Value) IsNull() bool { return v.null }

// Bool returns the value of a Boolean.
func (v Value) Bool() bool { v.must(Boolean); return v.b }

// Long returns the value of a Long.
func (v Value) Long() int64 { v.must(Long); return v.i }

// Double returns the value of a Double.
func (v Value) Double() float64 { v.must(Double); return v.f }

// Str returns the value of a String.
func (v Value) Str() string { v.must(String); return v.s }

// Time returns the value of a Timestamp.
func (v Value) Time() time.Time { v.must(Timestamp); return v.t }

// JSONText returns the serialized document of a JSON value.
func (v Value) JSONText() string { v.must(JSON); return v.s }

func (v Value) must(t Type) {
	if v.typ != t {
		panic(fmt.Sprintf("record: %v accessed as %v", v.typ, t))
	}
	if v.null {
		panic(fmt.Sprintf("record: null %v accessed", t))
	}
}

// Equal tells whether v and w have the same type and value.
// Timestamps are compared as instants.
func (v Value) Equal(w Value) bool {
	if v.typ != w.typ || v.null != w.null {
		return false
	}
	if v.null {
		return true
	}
	switch v.typ {
	case Boolean:
		return v.b == w.b
	case Long:
		return v.i == w.i
	case Double:
		return v.f == w.f
	case String, JSON:
		return v.s == w.s
	case Timestamp:
		return v.t.Equal(w.t)
	}
	return false
}

func (v Value) String() string {
	if v.null {
		return "null"
	}
	switch v.typ {
	case Boolean:
		return fmt.Sprint(v.b)
	case Long:
		return fmt.Sprint(v.i)
	case Double:
		return fmt.Sprint(v.f)
	case String:
		return fmt.Sprintf("%q", v.s)
	case Timestamp:
		return v.t.Format(time.RFC3339Nano)
	case JSON:
		return v.s
	}
	return fmt.Sprintf("Value(%d)", int(v.typ))
}
