package internal

import (
	"reflect"
)

// Deref strips pointer types down to the first non-pointer type.
func Deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// Indirect follows pointers and interfaces in v. It returns an invalid
// reflect.Value if it hits a nil.
func Indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// IsNil reports whether v is nil or a typed nil pointer, map, slice, func or
// interface.
func IsNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// NormalizeScalar converts named scalar types (type Year int) and pointers to
// scalars into their plain Go equivalents: bool, int64, uint64, float64 or
// string. Other values are returned unchanged.
func NormalizeScalar(v interface{}) interface{} {
	rv := Indirect(reflect.ValueOf(v))
	if !rv.IsValid() {
		return nil
	}
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	}
	return rv.Interface()
}

// ExportedPath reports whether every field on the index path from t is
// exported, so that the value can be read through reflection.
func ExportedPath(t reflect.Type, index []int) bool {
	for _, i := range index {
		t = Deref(t)
		if t.Kind() != reflect.Struct {
			return false
		}
		field := t.Field(i)
		if !field.IsExported() {
			return false
		}
		t = field.Type
	}
	return true
}

// FieldByIndex is reflect.Value.FieldByIndex that returns an invalid value
// instead of panicking when it walks through a nil embedded pointer.
func FieldByIndex(v reflect.Value, index []int) reflect.Value {
	for i, x := range index {
		if i > 0 {
			v = Indirect(v)
			if !v.IsValid() {
				return reflect.Value{}
			}
		}
		v = v.Field(x)
	}
	return v
}
