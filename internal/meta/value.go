package meta

import (
	"encoding/json"
	"strconv"
)

// ValueKind identifies the type of a configuration value.
// The numeric values are part of the record layout.
type ValueKind uint8

const (
	KindBool   ValueKind = 1
	KindInt    ValueKind = 2
	KindString ValueKind = 3
	KindEnum   ValueKind = 4
)

func (k ValueKind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindEnum:
		return "enum"
	default:
		return "invalid"
	}
}

// Value is a typed configuration value.
// This is a sealed interface; only types in this package implement it.
type Value interface {
	isValue()
	Kind() ValueKind
	String() string
}

// Bool is a tristate option resolved to on or off.
type Bool bool

// Int is an integer option (decimal or hex in the source).
type Int int64

// String is a quoted string option.
type String string

// Enum is an unquoted symbolic option.
type Enum string

func (Bool) isValue()   {}
func (Int) isValue()    {}
func (String) isValue() {}
func (Enum) isValue()   {}

func (Bool) Kind() ValueKind   { return KindBool }
func (Int) Kind() ValueKind    { return KindInt }
func (String) Kind() ValueKind { return KindString }
func (Enum) Kind() ValueKind   { return KindEnum }

func (b Bool) String() string {
	if b {
		return "y"
	}
	return "n"
}

func (i Int) String() string    { return strconv.FormatInt(int64(i), 10) }
func (s String) String() string { return strconv.Quote(string(s)) }
func (e Enum) String() string   { return string(e) }

// Entry is one configuration key with its value.
type Entry struct {
	Key   string
	Value Value
}

// MarshalJSON renders the entry as {"key","type","value"}.
func (e Entry) MarshalJSON() ([]byte, error) {
	var v any
	switch val := e.Value.(type) {
	case Bool:
		v = bool(val)
	case Int:
		v = int64(val)
	case String:
		v = string(val)
	case Enum:
		v = string(val)
	}
	return json.Marshal(struct {
		Key   string `json:"key"`
		Type  string `json:"type"`
		Value any    `json:"value"`
	}{e.Key, e.Value.Kind().String(), v})
}
