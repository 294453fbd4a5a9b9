package engine

import (
	"encoding"
	"encoding/base64"
	"fmt"
	"reflect"
	"sort"
	"strconv"

	gql "github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"github.com/tinnou/glitr/batch"
	"github.com/tinnou/glitr/graphql"
	"github.com/tinnou/glitr/internal"
)

// converter maps a finished graphql.Schema onto graphql-go types. Named types
// are converted once; fields, interfaces and union members are thunks, so
// cycles resolve lazily while graphql-go builds its type map.
type converter struct {
	schema *graphql.Schema

	objects    map[string]*gql.Object
	interfaces map[string]*gql.Interface
	unions     map[string]*gql.Union
	enums      map[string]*gql.Enum
	inputs     map[string]*gql.InputObject
	scalars    map[string]*gql.Scalar

	err error
}

func newConverter(schema *graphql.Schema) *converter {
	return &converter{
		schema:     schema,
		objects:    make(map[string]*gql.Object),
		interfaces: make(map[string]*gql.Interface),
		unions:     make(map[string]*gql.Union),
		enums:      make(map[string]*gql.Enum),
		inputs:     make(map[string]*gql.InputObject),
		scalars:    make(map[string]*gql.Scalar),
	}
}

func (c *converter) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// convert builds the graphql-go schema. Every named type is listed so that
// objects only reachable through an interface are still part of it.
func (c *converter) convert() (gql.Schema, error) {
	if c.schema.Query == nil {
		return gql.Schema{}, fmt.Errorf("schema has no query root")
	}

	config := gql.SchemaConfig{Query: c.object(c.schema.Query)}
	if c.schema.Mutation != nil {
		config.Mutation = c.object(c.schema.Mutation)
	}
	for _, name := range c.schema.TypeNames() {
		if graphql.IsBuiltinScalar(name) {
			continue
		}
		typ := c.schema.Types[name]
		_, input := typ.(*graphql.InputObject)
		config.Types = append(config.Types, c.typ(typ, input))
	}

	schema, err := gql.NewSchema(config)
	if c.err != nil {
		return gql.Schema{}, c.err
	}
	if err != nil {
		return gql.Schema{}, err
	}
	c.warmEnums()
	return schema, nil
}

// warmEnums fills the value and name lookups graphql-go caches on first use,
// so concurrent queries only ever read them.
func (c *converter) warmEnums() {
	for _, enum := range c.enums {
		enum.Serialize(nil)
		enum.ParseValue("")
	}
}

// typ converts t. Input and output positions accept different kinds of named
// types; a type in the wrong position fails the conversion.
func (c *converter) typ(t graphql.Type, input bool) gql.Type {
	switch t := t.(type) {
	case *graphql.NonNull:
		return gql.NewNonNull(c.typ(t.Type, input))
	case *graphql.List:
		return gql.NewList(c.typ(t.Type, input))
	case *graphql.Scalar:
		return c.scalar(t)
	case *graphql.Enum:
		return c.enum(t)
	case *graphql.InputObject:
		if !input {
			c.fail(fmt.Errorf("input object %s used as an output type", t.Name))
			return gql.String
		}
		return c.inputObject(t)
	case *graphql.Object:
		if input {
			c.fail(fmt.Errorf("object %s used as an input type", t.Name))
			return gql.String
		}
		return c.object(t)
	case *graphql.Interface:
		if input {
			c.fail(fmt.Errorf("interface %s used as an input type", t.Name))
			return gql.String
		}
		return c.iface(t)
	case *graphql.Union:
		if input {
			c.fail(fmt.Errorf("union %s used as an input type", t.Name))
			return gql.String
		}
		return c.union(t)
	default:
		c.fail(fmt.Errorf("unsupported type %v", t))
		return gql.String
	}
}

func (c *converter) output(t graphql.Type) gql.Output {
	return c.typ(t, false).(gql.Output)
}

func (c *converter) input(t graphql.Type) gql.Input {
	return c.typ(t, true).(gql.Input)
}

func (c *converter) scalar(s *graphql.Scalar) *gql.Scalar {
	switch s.Type {
	case "Int":
		return gql.Int
	case "Float":
		return gql.Float
	case "String":
		return gql.String
	case "Boolean":
		return gql.Boolean
	case "ID":
		return gql.ID
	}
	if scalar, ok := c.scalars[s.Type]; ok {
		return scalar
	}
	scalar := gql.NewScalar(gql.ScalarConfig{
		Name:        s.Type,
		Description: s.Description,
		Serialize:   serializeScalar,
		ParseValue: func(value interface{}) interface{} {
			return value
		},
		ParseLiteral: parseLiteral,
	})
	c.scalars[s.Type] = scalar
	return scalar
}

func (c *converter) enum(e *graphql.Enum) *gql.Enum {
	if enum, ok := c.enums[e.Type]; ok {
		return enum
	}
	values := make(gql.EnumValueConfigMap, len(e.Values))
	for _, v := range e.Values {
		values[v.Name] = &gql.EnumValueConfig{
			Value:       v.Value,
			Description: v.Description,
		}
	}
	enum := gql.NewEnum(gql.EnumConfig{
		Name:        e.Type,
		Description: e.Description,
		Values:      values,
	})
	c.enums[e.Type] = enum
	return enum
}

func (c *converter) object(o *graphql.Object) *gql.Object {
	if obj, ok := c.objects[o.Name]; ok {
		return obj
	}
	obj := gql.NewObject(gql.ObjectConfig{
		Name:        o.Name,
		Description: o.Description,
		Interfaces: gql.InterfacesThunk(func() []*gql.Interface {
			interfaces := make([]*gql.Interface, 0, len(o.Interfaces))
			for _, iface := range o.Interfaces {
				interfaces = append(interfaces, c.iface(iface))
			}
			return interfaces
		}),
		Fields: gql.FieldsThunk(func() gql.Fields {
			return c.fields(o.Fields, true)
		}),
	})
	c.objects[o.Name] = obj
	return obj
}

func (c *converter) iface(i *graphql.Interface) *gql.Interface {
	if iface, ok := c.interfaces[i.Name]; ok {
		return iface
	}
	iface := gql.NewInterface(gql.InterfaceConfig{
		Name:        i.Name,
		Description: i.Description,
		Fields: gql.FieldsThunk(func() gql.Fields {
			return c.fields(i.Fields, false)
		}),
		ResolveType: c.typeResolver(i.ResolveType),
	})
	c.interfaces[i.Name] = iface
	return iface
}

func (c *converter) union(u *graphql.Union) *gql.Union {
	if union, ok := c.unions[u.Name]; ok {
		return union
	}
	union := gql.NewUnion(gql.UnionConfig{
		Name:        u.Name,
		Description: u.Description,
		Types: gql.UnionTypesThunk(func() []*gql.Object {
			names := make([]string, 0, len(u.Types))
			for name := range u.Types {
				names = append(names, name)
			}
			sort.Strings(names)
			types := make([]*gql.Object, 0, len(names))
			for _, name := range names {
				types = append(types, c.object(u.Types[name]))
			}
			return types
		}),
		ResolveType: c.typeResolver(u.ResolveType),
	})
	c.unions[u.Name] = union
	return union
}

func (c *converter) inputObject(io *graphql.InputObject) *gql.InputObject {
	if input, ok := c.inputs[io.Name]; ok {
		return input
	}
	input := gql.NewInputObject(gql.InputObjectConfig{
		Name:        io.Name,
		Description: io.Description,
		Fields: gql.InputObjectConfigFieldMapThunk(func() gql.InputObjectConfigFieldMap {
			fields := make(gql.InputObjectConfigFieldMap, len(io.Fields))
			for name, f := range io.Fields {
				fields[name] = &gql.InputObjectFieldConfig{
					Type:         c.input(f.Type),
					DefaultValue: f.DefaultValue,
					Description:  f.Description,
				}
			}
			return fields
		}),
	})
	c.inputs[io.Name] = input
	return input
}

func (c *converter) fields(fields map[string]*graphql.Field, resolvable bool) gql.Fields {
	out := make(gql.Fields, len(fields))
	for name, f := range fields {
		field := &gql.Field{
			Name:        name,
			Description: f.Description,
			Type:        c.output(f.Type),
			Args:        c.args(f.Args),
		}
		if resolvable {
			field.Resolve = resolver(f)
		}
		out[name] = field
	}
	return out
}

func (c *converter) args(args []*graphql.Argument) gql.FieldConfigArgument {
	if len(args) == 0 {
		return nil
	}
	out := make(gql.FieldConfigArgument, len(args))
	for _, arg := range args {
		out[arg.Name] = &gql.ArgumentConfig{
			Type:         c.input(arg.Type),
			DefaultValue: arg.DefaultValue,
			Description:  arg.Description,
		}
	}
	return out
}

// typeResolver adapts a TypeResolver. graphql-go recovers panics raised while
// completing a field, so a ResolutionError fails only the field it occurred
// in.
func (c *converter) typeResolver(resolve graphql.TypeResolver) gql.ResolveTypeFn {
	return func(p gql.ResolveTypeParams) *gql.Object {
		name, err := resolve(p.Value)
		if err != nil {
			panic(err)
		}
		return c.objects[name]
	}
}

// resolver adapts a field's Resolver. Batched fields return a thunk when the
// context batches, so that graphql-go visits every sibling before the batch
// runs.
func resolver(f *graphql.Field) gql.FieldResolveFn {
	finish := func(v interface{}) interface{} { return v }
	if named, ok := graphql.Named(f.Type).(*graphql.Scalar); ok && graphql.IsBuiltinScalar(named.Type) {
		finish = normalizeLeaves
	}

	return func(p gql.ResolveParams) (interface{}, error) {
		if f.Defer != nil && batch.HasBatching(p.Context) {
			thunk := f.Defer(p.Context, p.Source, p.Args)
			return func() (interface{}, error) {
				value, err := thunk()
				if err != nil {
					return nil, err
				}
				return finish(value), nil
			}, nil
		}
		if f.Resolve == nil {
			return nil, fmt.Errorf("field %s has no resolver", f.Name)
		}
		value, err := f.Resolve(p.Context, p.Source, p.Args)
		if err != nil {
			return nil, err
		}
		return finish(value), nil
	}
}

// normalizeLeaves turns named Go scalars (type Year int) into the plain values
// graphql-go's builtin scalars accept, element by element for lists.
func normalizeLeaves(v interface{}) interface{} {
	if internal.IsNil(v) {
		return nil
	}
	if m, ok := v.(encoding.TextMarshaler); ok {
		text, err := m.MarshalText()
		if err != nil {
			return nil
		}
		return string(text)
	}
	rv := internal.Indirect(reflect.ValueOf(v))
	if !rv.IsValid() {
		return nil
	}
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = normalizeLeaves(rv.Index(i).Interface())
		}
		return out
	}
	return internal.NormalizeScalar(rv.Interface())
}

// serializeScalar writes custom scalars: text marshalers as their text, bytes
// as base64 and named Go scalars as plain values.
func serializeScalar(v interface{}) interface{} {
	if internal.IsNil(v) {
		return nil
	}
	switch v := v.(type) {
	case []byte:
		return base64.StdEncoding.EncodeToString(v)
	case encoding.TextMarshaler:
		text, err := v.MarshalText()
		if err != nil {
			return nil
		}
		return string(text)
	}
	return internal.NormalizeScalar(v)
}

func parseLiteral(value ast.Value) interface{} {
	switch value := value.(type) {
	case *ast.StringValue:
		return value.Value
	case *ast.BooleanValue:
		return value.Value
	case *ast.IntValue:
		n, err := strconv.ParseInt(value.Value, 10, 64)
		if err != nil {
			return nil
		}
		return n
	case *ast.FloatValue:
		f, err := strconv.ParseFloat(value.Value, 64)
		if err != nil {
			return nil
		}
		return f
	}
	return nil
}
