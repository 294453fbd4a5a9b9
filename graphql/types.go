package graphql

import (
	"context"
	"fmt"
	"sort"
)

// Type represents a GraphQL type, and should be either a Scalar, an Enum, an
// Object, an Interface, a Union, an InputObject, a List, a NonNull or, while a
// schema is still being built, a Reference.
type Type interface {
	String() string

	// isType() is a no-op used to tag the known values of Type, to prevent
	// arbitrary interface{} from implementing Type
	isType()
}

// Scalar is a leaf value
type Scalar struct {
	Type        string
	Description string
}

func (s *Scalar) isType() {}

func (s *Scalar) String() string {
	return s.Type
}

// EnumValue is a single named value of an Enum. Value holds the Go constant
// the name maps to.
type EnumValue struct {
	Name        string
	Description string
	Value       interface{}
}

// Enum is a leaf value restricted to a set of names. Values are kept in
// declaration order.
type Enum struct {
	Type        string
	Description string
	Values      []*EnumValue
	ReverseMap  map[interface{}]string
}

func (e *Enum) isType() {}

func (e *Enum) String() string {
	return e.Type
}

// Object is a value with several fields
type Object struct {
	Name        string
	Description string
	Fields      map[string]*Field
	Interfaces  []*Interface
}

func (o *Object) isType() {}

func (o *Object) String() string {
	return o.Name
}

// FieldNames returns the names of the object's fields in alphabetical order.
func (o *Object) FieldNames() []string {
	return sortedFieldNames(o.Fields)
}

// A TypeResolver maps a runtime value of an abstract type to the name of its
// concrete Object.
type TypeResolver func(value interface{}) (string, error)

// Interface is an abstract type with a set of fields that every possible type
// implements.
type Interface struct {
	Name          string
	Description   string
	Fields        map[string]*Field
	PossibleTypes map[string]*Object
	ResolveType   TypeResolver
}

func (i *Interface) isType() {}

func (i *Interface) String() string {
	return i.Name
}

// FieldNames returns the names of the interface's fields in alphabetical order.
func (i *Interface) FieldNames() []string {
	return sortedFieldNames(i.Fields)
}

// Union is a option between multiple types
type Union struct {
	Name        string
	Description string
	Types       map[string]*Object
	ResolveType TypeResolver
}

func (u *Union) isType() {}

func (u *Union) String() string {
	return u.Name
}

// InputField is a writable field of an InputObject. It has no resolver: its
// value is supplied by the caller.
type InputField struct {
	Name         string
	Description  string
	Type         Type
	DefaultValue interface{}
}

// InputObject defines the object in argument of a query or mutation.
type InputObject struct {
	Name        string
	Description string
	Fields      map[string]*InputField
}

func (io *InputObject) isType() {}

func (io *InputObject) String() string {
	return io.Name
}

// FieldNames returns the names of the input object's fields in alphabetical
// order.
func (io *InputObject) FieldNames() []string {
	names := make([]string, 0, len(io.Fields))
	for name := range io.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List is a collection of other values
type List struct {
	Type Type
}

func (l *List) isType() {}

func (l *List) String() string {
	return fmt.Sprintf("[%s]", l.Type)
}

// NonNull is a non-nullable other value
type NonNull struct {
	Type Type
}

func (n *NonNull) isType() {}

func (n *NonNull) String() string {
	return fmt.Sprintf("%s!", n.Type)
}

// Reference is a named stand-in for a type whose definition is still under
// construction. A finished Schema contains no references.
type Reference struct {
	Name string
}

func (r *Reference) isType() {}

func (r *Reference) String() string {
	return r.Name
}

// Verify all types implement Type
var _ Type = &Scalar{}
var _ Type = &Enum{}
var _ Type = &Object{}
var _ Type = &Interface{}
var _ Type = &Union{}
var _ Type = &InputObject{}
var _ Type = &List{}
var _ Type = &NonNull{}
var _ Type = &Reference{}

// A Resolver calculates the value of a field of an object
type Resolver func(ctx context.Context, source interface{}, args map[string]interface{}) (interface{}, error)

// A BatchResolver calculates the value of a field for a slice of objects. The
// i-th result belongs to the i-th source.
type BatchResolver func(ctx context.Context, sources []interface{}, args map[string]interface{}) ([]interface{}, error)

// Argument is an input value accepted by a Field.
type Argument struct {
	Name         string
	Description  string
	Type         Type
	DefaultValue interface{}
}

// Field knows how to compute field values of an Object
//
// Fields are responsible for computing their value themselves. A field with a
// non-nil BatchResolve prefers to be called once for many sources; Resolve
// still works for a single source.
type Field struct {
	Name        string
	Description string
	Type        Type
	Args        []*Argument

	Resolve      Resolver
	BatchResolve BatchResolver
	// Defer queues the source for a batched call and returns a thunk for its
	// value. It requires a context prepared with batch.WithBatching and is set
	// only on batched fields.
	Defer func(ctx context.Context, source interface{}, args map[string]interface{}) func() (interface{}, error)
}

// Batched reports whether the field prefers batched resolution.
func (f *Field) Batched() bool {
	return f.BatchResolve != nil
}

// Schema is a finished, immutable schema graph. It is safe for concurrent use.
type Schema struct {
	Query    *Object
	Mutation *Object
	Types    map[string]Type
}

// TypeNames returns the names of every named type in alphabetical order.
func (s *Schema) TypeNames() []string {
	names := make([]string, 0, len(s.Types))
	for name := range s.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveType returns the concrete object name of value, which was returned
// for a field of the interface or union named abstract.
func (s *Schema) ResolveType(abstract string, value interface{}) (string, error) {
	var resolve TypeResolver
	switch typ := s.Types[abstract].(type) {
	case *Interface:
		resolve = typ.ResolveType
	case *Union:
		resolve = typ.ResolveType
	default:
		return "", fmt.Errorf("%s is not an interface or union", abstract)
	}
	return resolve(value)
}

// Named strips List and NonNull wrappers from t.
func Named(t Type) Type {
	for {
		switch typ := t.(type) {
		case *List:
			t = typ.Type
		case *NonNull:
			t = typ.Type
		default:
			return t
		}
	}
}

func sortedFieldNames(fields map[string]*Field) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
