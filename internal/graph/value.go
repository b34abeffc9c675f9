package graph

import (
	"fmt"
	"strconv"
)

// Datatype is the type of a stored object.
type Datatype string

const (
	TypeRef     Datatype = "ref"
	TypeString  Datatype = "string"
	TypeInteger Datatype = "integer"
	TypeDecimal Datatype = "decimal"
	TypeBoolean Datatype = "boolean"
)

// Value is the object of a triple.
type Value struct {
	Type    Datatype
	Lexical string
}

func Ref(id string) Value   { return Value{Type: TypeRef, Lexical: id} }
func String(s string) Value { return Value{Type: TypeString, Lexical: s} }
func Integer(n int64) Value { return Value{Type: TypeInteger, Lexical: strconv.FormatInt(n, 10)} }
func Decimal(f float64) Value {
	return Value{Type: TypeDecimal, Lexical: strconv.FormatFloat(f, 'f', -1, 64)}
}
func Boolean(b bool) Value     { return Value{Type: TypeBoolean, Lexical: strconv.FormatBool(b)} }
func (v Value) IsRef() bool    { return v.Type == TypeRef }
func (v Value) String() string { return v.Lexical }

// Float returns the numeric value, or false if the lexical form is not a number.
func (v Value) Float() (float64, bool) {
	f, err := strconv.ParseFloat(v.Lexical, 64)
	return f, err == nil
}

// sqlValue is the representation stored in the triples table. Numbers are
// stored as SQLite numbers so range filters compare numerically.
func (v Value) sqlValue() any {
	switch v.Type {
	case TypeInteger:
		if n, err := strconv.ParseInt(v.Lexical, 10, 64); err == nil {
			return n
		}
	case TypeDecimal:
		if f, err := strconv.ParseFloat(v.Lexical, 64); err == nil {
			return f
		}
	}
	return v.Lexical
}

func valueFromSQL(dt string, raw any) Value {
	return Value{Type: Datatype(dt), Lexical: lexical(raw)}
}

func lexical(raw any) string {
	switch t := raw.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
