package schemabuilder

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/tinnou/glitr/graphql"
)

// EnumValue names one value of an enum registered with Schema.Enum.
type EnumValue struct {
	Name        string
	Value       interface{}
	Description string
}

type enumDecl struct {
	name        string
	description string
	values      []*graphql.EnumValue
}

// Enum registers the Go type of val as a GraphQL enum. values is either a
// map[string]T from names to values, exposed in alphabetical order, or a
// []interface{} of EnumValue and fmt.Stringer constants of type T, exposed in
// the given order.
//
//     schema.Enum(Genre(0), []interface{}{Fiction, NonFiction})
func (s *Schema) Enum(val interface{}, values interface{}, options ...ObjectOption) {
	typ := reflect.TypeOf(val)
	if typ == nil {
		s.errorf("", "", "Enum expects a value of the enum type, got nil")
		return
	}

	config := &Object{Name: typ.Name()}
	for _, opt := range options {
		opt.apply(s, config)
	}

	decl := &enumDecl{name: config.Name, description: config.Description}
	var err error
	switch v := reflect.ValueOf(values); {
	case v.Kind() == reflect.Map && v.Type().Key().Kind() == reflect.String:
		decl.values, err = enumValuesFromMap(v, typ)
	case v.Kind() == reflect.Slice:
		decl.values, err = enumValuesFromSlice(v, typ)
	default:
		err = fmt.Errorf("enum values should be a map[string]%s or a slice, not %T", typ, values)
	}
	if err != nil {
		s.errorf(decl.name, "", "%s", err)
		return
	}

	seen := make(map[string]bool, len(decl.values))
	names := make(map[interface{}]string, len(decl.values))
	for _, value := range decl.values {
		if !validName.MatchString(value.Name) {
			s.errorf(decl.name, "", "invalid enum value name %q", value.Name)
			return
		}
		if seen[value.Name] {
			s.errorf(decl.name, "", "duplicate enum value %s", value.Name)
			return
		}
		seen[value.Name] = true
		if prev, ok := names[value.Value]; ok {
			s.errorf(decl.name, "", "duplicate enum value %v (%s and %s)", value.Value, prev, value.Name)
			return
		}
		names[value.Value] = value.Name
	}

	if _, ok := s.enums[typ]; !ok {
		s.order = append(s.order, typ)
	}
	s.enums[typ] = decl
}

func enumValuesFromMap(v reflect.Value, typ reflect.Type) ([]*graphql.EnumValue, error) {
	var values []*graphql.EnumValue
	for _, key := range v.MapKeys() {
		value, err := convertEnumValue(v.MapIndex(key), typ)
		if err != nil {
			return nil, err
		}
		values = append(values, &graphql.EnumValue{Name: key.String(), Value: value})
	}
	sort.Slice(values, func(i, j int) bool {
		return values[i].Name < values[j].Name
	})
	return values, nil
}

func enumValuesFromSlice(v reflect.Value, typ reflect.Type) ([]*graphql.EnumValue, error) {
	values := make([]*graphql.EnumValue, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		switch elem := v.Index(i).Interface().(type) {
		case EnumValue:
			value, err := convertEnumValue(reflect.ValueOf(elem.Value), typ)
			if err != nil {
				return nil, err
			}
			values = append(values, &graphql.EnumValue{Name: elem.Name, Value: value, Description: elem.Description})
		case fmt.Stringer:
			value, err := convertEnumValue(reflect.ValueOf(elem), typ)
			if err != nil {
				return nil, err
			}
			values = append(values, &graphql.EnumValue{Name: elem.String(), Value: value})
		default:
			return nil, fmt.Errorf("enum value %v should be an EnumValue or a fmt.Stringer", elem)
		}
	}
	return values, nil
}

func convertEnumValue(v reflect.Value, typ reflect.Type) (interface{}, error) {
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() || v.Kind() != typ.Kind() {
		return nil, fmt.Errorf("enum value %v is not a %s", v, typ)
	}
	return v.Convert(typ).Interface(), nil
}

// buildEnum is the enum factory.
func (sb *schemaBuilder) buildEnum(typ reflect.Type, name string, decl *enumDecl) (graphql.Type, error) {
	if len(decl.values) == 0 {
		return nil, graphql.NewConfigError(name, "", "enum has no values")
	}
	enum := &graphql.Enum{
		Type:        name,
		Description: decl.description,
		ReverseMap:  make(map[interface{}]string, len(decl.values)),
	}
	for _, value := range decl.values {
		enum.Values = append(enum.Values, &graphql.EnumValue{
			Name:        value.Name,
			Description: value.Description,
			Value:       value.Value,
		})
		enum.ReverseMap[value.Value] = value.Name
	}
	return enum, nil
}
