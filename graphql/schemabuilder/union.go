package schemabuilder

import (
	"context"
	"reflect"

	"github.com/tinnou/glitr/graphql"
	"github.com/tinnou/glitr/internal"
)

type unionDecl struct {
	name        string
	description string
	members     []reflect.Type
}

// Union registers a Go interface as a GraphQL union of the given member
// types instead of as a GraphQL interface. typ should be a nil pointer to the
// interface and every member must implement it.
//
//     schema.Union("SearchResult", (*Searchable)(nil), []interface{}{Book{}, Person{}})
func (s *Schema) Union(name string, typ interface{}, members []interface{}, options ...ObjectOption) {
	t := reflect.TypeOf(typ)
	if t == nil || t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Interface {
		s.errorf(name, "", "Union expects a nil pointer to an interface, got %v", t)
		return
	}
	t = t.Elem()

	config := &Object{Name: name}
	for _, opt := range options {
		opt.apply(s, config)
	}
	decl := &unionDecl{name: config.Name, description: config.Description}
	for _, member := range members {
		mt := reflect.TypeOf(member)
		if mt == nil || deref(mt).Kind() != reflect.Struct {
			s.errorf(name, "", "union members should be structs, got %v", mt)
			return
		}
		decl.members = append(decl.members, deref(mt))
	}
	if len(decl.members) == 0 {
		s.errorf(name, "", "union has no members")
		return
	}

	if _, ok := s.unions[t]; !ok {
		s.order = append(s.order, t)
	}
	s.unions[t] = decl
}

// buildUnion is the union factory for interfaces declared with Union.
func (sb *schemaBuilder) buildUnion(typ reflect.Type, name string, decl *unionDecl) (graphql.Type, error) {
	union := &graphql.Union{
		Name:        name,
		Description: decl.description,
		Types:       make(map[string]*graphql.Object),
	}
	for _, member := range decl.members {
		if !reflect.PtrTo(member).Implements(typ) {
			return nil, graphql.NewConfigError(name, "", "member %s does not implement %s", member, typ)
		}
		if err := sb.addUnionMember(name, member); err != nil {
			return nil, err
		}
	}
	return union, nil
}

// isMarkerUnion reports whether typ is a struct embedding the Union marker.
func isMarkerUnion(typ reflect.Type) bool {
	if typ.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < typ.NumField(); i++ {
		if f := typ.Field(i); f.Anonymous && f.Type == unionType {
			return true
		}
	}
	return false
}

// buildMarkerUnion is the union factory for structs embedding Union. Each
// other field is a pointer to a member object.
func (sb *schemaBuilder) buildMarkerUnion(typ reflect.Type, name string) (graphql.Type, error) {
	union := &graphql.Union{
		Name:        name,
		Description: sb.objectConfig(typ).Description,
		Types:       make(map[string]*graphql.Object),
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if f.Type == unionType {
			continue
		}
		if !f.IsExported() || f.Type.Kind() != reflect.Ptr || f.Type.Elem().Kind() != reflect.Struct {
			return nil, graphql.NewConfigError(name, f.Name, "union members should be exported pointers to structs")
		}
		if err := sb.addUnionMember(name, f.Type.Elem()); err != nil {
			return nil, err
		}
	}
	if len(sb.unionMembers[name]) == 0 {
		return nil, graphql.NewConfigError(name, "", "union has no members")
	}
	return union, nil
}

// addUnionMember registers member as an object. The union's Types are filled
// in by finish, once forward references are resolved.
func (sb *schemaBuilder) addUnionMember(union string, member reflect.Type) error {
	typ, err := sb.getType(member)
	if err != nil {
		return err
	}
	switch graphql.Named(typ).(type) {
	case *graphql.Object, *graphql.Reference:
	default:
		return graphql.NewConfigError(union, "", "member %s is not an object", member)
	}
	sb.unionMembers[union] = append(sb.unionMembers[union], graphql.Named(typ).String())
	return nil
}

// unwrapUnions wraps resolve so that marker union values in its result are
// replaced by their one set member.
func (sb *schemaBuilder) unwrapUnions(typ reflect.Type, resolve graphql.Resolver) graphql.Resolver {
	if !containsMarkerUnion(typ) {
		return resolve
	}
	return func(ctx context.Context, source interface{}, args map[string]interface{}) (interface{}, error) {
		value, err := resolve(ctx, source, args)
		if err != nil || value == nil {
			return value, err
		}
		return unwrapUnion(reflect.ValueOf(value)), nil
	}
}

func containsMarkerUnion(typ reflect.Type) bool {
	typ = deref(typ)
	switch typ.Kind() {
	case reflect.Slice, reflect.Array:
		return containsMarkerUnion(typ.Elem())
	case reflect.Struct:
		return isMarkerUnion(typ)
	}
	return false
}

func unwrapUnion(v reflect.Value) interface{} {
	v = internal.Indirect(v)
	if !v.IsValid() {
		return nil
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]interface{}, v.Len())
		for i := range items {
			items[i] = unwrapUnion(v.Index(i))
		}
		return items
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).Type == unionType {
				continue
			}
			if f := v.Field(i); !f.IsNil() {
				return f.Interface()
			}
		}
		return nil
	}
	return v.Interface()
}
