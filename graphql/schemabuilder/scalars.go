package schemabuilder

import (
	"reflect"
	"time"
)

// Scalars with a fixed Go type. They take precedence over kind-based scalars
// and over structs, so that eg. time.Time functions as a scalar.
var exactScalars = []struct {
	typ  reflect.Type
	name string
}{
	{reflect.TypeOf(time.Time{}), "Time"},
	{reflect.TypeOf([]byte{}), "Bytes"},
	{reflect.TypeOf(ID("")), "ID"},
}

// builtinArgTypes are the Go types of scalar names used in arg= tags.
var builtinArgTypes = map[string]reflect.Type{
	"Int":     reflect.TypeOf(int64(0)),
	"Float":   reflect.TypeOf(float64(0)),
	"String":  reflect.TypeOf(""),
	"Boolean": reflect.TypeOf(false),
	"ID":      reflect.TypeOf(ID("")),
}

// getScalar grabs the appropriate scalar graphql field type name for the passed
// in variable reflect type.
func (sb *schemaBuilder) getScalar(typ reflect.Type) (string, bool) {
	if name, ok := sb.scalars[typ]; ok {
		return name, true
	}
	for _, scalar := range exactScalars {
		if typ == scalar.typ {
			return scalar.name, true
		}
	}

	switch typ.Kind() {
	case reflect.Bool:
		return "Boolean", true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "Int", true
	case reflect.Float32, reflect.Float64:
		return "Float", true
	case reflect.String:
		return "String", true
	}
	return "", false
}
