package graphql

import (
	"bytes"
	"fmt"
	"reflect"
	"sort"
	"strconv"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
)

// builtinScalars are part of every GraphQL schema and are not printed.
var builtinScalars = map[string]bool{
	"Boolean": true,
	"Float":   true,
	"ID":      true,
	"Int":     true,
	"String":  true,
}

// IsBuiltinScalar reports whether name is one of the scalars every GraphQL
// implementation provides.
func IsBuiltinScalar(name string) bool {
	return builtinScalars[name]
}

// SDL prints the schema in the GraphQL schema definition language. Types,
// fields and interfaces are printed in alphabetical order, arguments and enum
// values in declaration order, so building the same host types twice prints
// identical output.
func (s *Schema) SDL() string {
	doc := s.Document()
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatSchemaDocument(doc)
	return buf.String()
}

// Document converts the schema into a gqlparser schema document.
func (s *Schema) Document() *ast.SchemaDocument {
	doc := &ast.SchemaDocument{}

	schemaDef := &ast.SchemaDefinition{}
	if s.Query != nil {
		schemaDef.OperationTypes = append(schemaDef.OperationTypes, &ast.OperationTypeDefinition{Operation: ast.Query, Type: s.Query.Name})
	}
	if s.Mutation != nil {
		schemaDef.OperationTypes = append(schemaDef.OperationTypes, &ast.OperationTypeDefinition{Operation: ast.Mutation, Type: s.Mutation.Name})
	}
	doc.Schema = append(doc.Schema, schemaDef)

	for _, name := range s.TypeNames() {
		if def := definition(s.Types[name]); def != nil {
			doc.Definitions = append(doc.Definitions, def)
		}
	}
	return doc
}

func definition(t Type) *ast.Definition {
	switch typ := t.(type) {
	case *Scalar:
		if IsBuiltinScalar(typ.Type) {
			return nil
		}
		return &ast.Definition{Kind: ast.Scalar, Name: typ.Type, Description: typ.Description}

	case *Enum:
		def := &ast.Definition{Kind: ast.Enum, Name: typ.Type, Description: typ.Description}
		for _, value := range typ.Values {
			def.EnumValues = append(def.EnumValues, &ast.EnumValueDefinition{Name: value.Name, Description: value.Description})
		}
		return def

	case *Object:
		def := &ast.Definition{Kind: ast.Object, Name: typ.Name, Description: typ.Description}
		for _, iface := range typ.Interfaces {
			def.Interfaces = append(def.Interfaces, iface.Name)
		}
		for _, name := range typ.FieldNames() {
			def.Fields = append(def.Fields, fieldDefinition(typ.Fields[name]))
		}
		return def

	case *Interface:
		def := &ast.Definition{Kind: ast.Interface, Name: typ.Name, Description: typ.Description}
		for _, name := range typ.FieldNames() {
			def.Fields = append(def.Fields, fieldDefinition(typ.Fields[name]))
		}
		return def

	case *Union:
		def := &ast.Definition{Kind: ast.Union, Name: typ.Name, Description: typ.Description}
		def.Types = sortedObjectNames(typ.Types)
		return def

	case *InputObject:
		def := &ast.Definition{Kind: ast.InputObject, Name: typ.Name, Description: typ.Description}
		for _, name := range typ.FieldNames() {
			field := typ.Fields[name]
			def.Fields = append(def.Fields, &ast.FieldDefinition{
				Name:         field.Name,
				Description:  field.Description,
				Type:         astType(field.Type),
				DefaultValue: defaultValue(field.Type, field.DefaultValue),
			})
		}
		return def
	}
	return nil
}

func fieldDefinition(field *Field) *ast.FieldDefinition {
	def := &ast.FieldDefinition{
		Name:        field.Name,
		Description: field.Description,
		Type:        astType(field.Type),
	}
	for _, arg := range field.Args {
		def.Arguments = append(def.Arguments, &ast.ArgumentDefinition{
			Name:         arg.Name,
			Description:  arg.Description,
			Type:         astType(arg.Type),
			DefaultValue: defaultValue(arg.Type, arg.DefaultValue),
		})
	}
	return def
}

// defaultValue prints enum defaults by name and everything else by value.
func defaultValue(t Type, v interface{}) *ast.Value {
	if enum, ok := Named(t).(*Enum); ok && v != nil {
		if name, ok := enum.ReverseMap[v]; ok {
			return &ast.Value{Kind: ast.EnumValue, Raw: name}
		}
		if stringer, ok := v.(fmt.Stringer); ok {
			return &ast.Value{Kind: ast.EnumValue, Raw: stringer.String()}
		}
	}
	return astValue(v)
}

func astType(t Type) *ast.Type {
	switch typ := t.(type) {
	case *NonNull:
		inner := astType(typ.Type)
		inner.NonNull = true
		return inner
	case *List:
		return &ast.Type{Elem: astType(typ.Type)}
	default:
		return &ast.Type{NamedType: t.String()}
	}
}

// astValue prints a default by its kind, so named types such as
// type Year int print as their underlying literal.
func astValue(v interface{}) *ast.Value {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return &ast.Value{Kind: ast.StringValue, Raw: rv.String()}
	case reflect.Bool:
		return &ast.Value{Kind: ast.BooleanValue, Raw: strconv.FormatBool(rv.Bool())}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &ast.Value{Kind: ast.IntValue, Raw: strconv.FormatInt(rv.Int(), 10)}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &ast.Value{Kind: ast.IntValue, Raw: strconv.FormatUint(rv.Uint(), 10)}
	case reflect.Float32:
		return &ast.Value{Kind: ast.FloatValue, Raw: strconv.FormatFloat(rv.Float(), 'g', -1, 32)}
	case reflect.Float64:
		return &ast.Value{Kind: ast.FloatValue, Raw: strconv.FormatFloat(rv.Float(), 'g', -1, 64)}
	}
	if stringer, ok := v.(fmt.Stringer); ok {
		return &ast.Value{Kind: ast.StringValue, Raw: stringer.String()}
	}
	return &ast.Value{Kind: ast.StringValue, Raw: fmt.Sprint(v)}
}

func sortedObjectNames(objects map[string]*Object) []string {
	names := make([]string, 0, len(objects))
	for name := range objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
