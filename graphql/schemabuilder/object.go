package schemabuilder

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/tinnou/glitr/graphql"
)

// A Object represents a Go type and set of methods to be converted into an
// Object in a GraphQL schema.
type Object struct {
	Name        string // Optional, defaults to Type's name.
	Description string
	Type        interface{}
	IsInterface bool

	methods map[string]*method
	members map[string]*fieldConfig
	// order lists FieldFunc names in registration order.
	order []string
}

// method is a field computed by a function instead of read from a member.
type method struct {
	Fn     interface{}
	Batch  bool
	config *fieldConfig
}

// FieldFunc exposes a field on an object. The function f can take a number of
// optional arguments:
// func([ctx context.Context], [o *Type], [args struct {}]) ([Result], [error])
//
// For example, for an object of type User, a fullName field might take just an
// instance of the object:
//    user.FieldFunc("fullName", func(u *User) string {
//       return u.FirstName + " " + u.LastName
//    })
//
// An addUser mutation field might take both a context and arguments:
//    mutation.FieldFunc("addUser", func(ctx context.Context, args struct{
//        FirstName string
//        LastName  string
//    }) (int, error) {
//        userID, err := db.AddUser(ctx, args.FirstName, args.LastName)
//        return userID, err
//    })
//
// The args may also be a map[string]interface{}, in which case the arguments
// are declared with Arg options. A field registered under the name of a
// member replaces the member.
func (s *Object) FieldFunc(name string, f interface{}, options ...FieldOption) {
	s.addMethod(name, &method{Fn: f}, options)
}

// BatchFieldFunc exposes a field computed for many sources at once:
// func([ctx context.Context], o map[int][*]Type, [args struct {}]) (map[int]Result, [error])
//
// The map keys identify sources; the result must hold an entry for every key
// that should resolve to a non-zero value. Batched fields are called once per
// group of sibling sources instead of once per source.
func (s *Object) BatchFieldFunc(name string, f interface{}, options ...FieldOption) {
	s.addMethod(name, &method{Fn: f, Batch: true}, options)
}

func (s *Object) addMethod(name string, m *method, options []FieldOption) {
	if s.methods == nil {
		s.methods = make(map[string]*method)
	}
	if _, ok := s.methods[name]; ok {
		panic(fmt.Sprintf("duplicate method %s on %s", name, s.Name))
	}
	m.config = &fieldConfig{}
	for _, opt := range options {
		opt(m.config)
	}
	s.methods[name] = m
	s.order = append(s.order, name)
}

// methodNames returns FieldFunc names in alphabetical order.
func (s *Object) methodNames() []string {
	names := append([]string(nil), s.order...)
	sort.Strings(names)
	return names
}

// buildObject is the object factory: it turns a struct into a graphql.Object
// whose member fields read the struct and whose FieldFunc fields call their
// functions.
func (sb *schemaBuilder) buildObject(typ reflect.Type, name string) (graphql.Type, error) {
	config := sb.objectConfig(typ)

	desc, err := sb.extractor(config).describe(typ, KindObject, name)
	if err != nil {
		return nil, err
	}

	object := &graphql.Object{
		Name:        name,
		Description: desc.Description,
		Fields:      make(map[string]*graphql.Field),
	}
	// Index the concrete type before visiting fields so that abstract types
	// reached through them can resolve values of this type.
	sb.goTypes[typ] = name

	for _, fd := range desc.Fields {
		if _, ok := config.methods[fd.Name]; ok {
			continue
		}
		field, err := sb.buildMemberField(typ, fd)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", name, fd.Name, err)
		}
		object.Fields[fd.Name] = field
	}

	for _, fieldName := range config.methodNames() {
		m := config.methods[fieldName]
		var field *graphql.Field
		if m.Batch {
			field, err = sb.buildBatchFunction(typ, fieldName, m)
		} else {
			field, err = sb.buildFunction(typ, fieldName, m)
		}
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", name, fieldName, err)
		}
		field.Name = fieldName
		field.Description = m.config.description
		object.Fields[fieldName] = field
	}

	if typ == mutationType {
		for _, m := range sb.relayMutations {
			field, err := sb.buildRelayMutation(m)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", name, m.name, err)
			}
			if _, ok := object.Fields[m.name]; ok {
				return nil, graphql.NewConfigError(name, m.name, "duplicate mutation")
			}
			object.Fields[m.name] = field
		}
	}

	if len(object.Fields) == 0 && typ != queryType && typ != mutationType {
		return nil, graphql.NewConfigError(name, "", "object has no fields")
	}
	return object, nil
}

// buildMemberField builds the field for an eligible member: a direct resolver,
// optionally followed by composite steps and paginated.
func (sb *schemaBuilder) buildMemberField(parent reflect.Type, fd *FieldDescriptor) (*graphql.Field, error) {
	retType, resolve, args, err := sb.shape(sb.typeName(parent), fd.Name, fd.Type, directResolver(fd), fd.Connection, fd.then)
	if err != nil {
		return nil, err
	}

	memberArgs, err := sb.buildArgs(fd.Args)
	if err != nil {
		return nil, err
	}
	if len(fd.Args) > 0 {
		resolve = sb.coerceArgs(fd.Args, resolve)
	}

	return &graphql.Field{
		Name:        fd.Name,
		Description: fd.Description,
		Type:        applyNullability(retType, fd.Nullable),
		Args:        append(args, memberArgs...),
		Resolve:     resolve,
	}, nil
}

// shape runs the values resolve computes through the composite steps in then,
// and paginates the result if connection is set. It returns the field's type
// before nullability policy, along with the final resolver and any
// pagination arguments.
func (sb *schemaBuilder) shape(owner, name string, goType reflect.Type, resolve graphql.Resolver, connection bool, then []interface{}) (graphql.Type, graphql.Resolver, []*graphql.Argument, error) {
	resultType := goType
	if len(then) > 0 {
		steps, out, err := sb.buildSteps(goType, then)
		if err != nil {
			return nil, nil, nil, graphql.NewConfigError(owner, name, "%s", err)
		}
		resolve = Chain(sb.unwrapUnions(goType, resolve), steps...)
		resultType = out
	}

	if connection {
		if kind := deref(resultType).Kind(); kind != reflect.Slice && kind != reflect.Array {
			return nil, nil, nil, graphql.NewConfigError(owner, name, "connections must be slices, not %s", resultType)
		}
		retType, err := sb.connectionType(deref(resultType).Elem())
		if err != nil {
			return nil, nil, nil, err
		}
		return retType, paginate(sb.unwrapUnions(resultType, resolve)), sb.connectionArgs(), nil
	}

	retType, err := sb.getType(resultType)
	if err != nil {
		return nil, nil, nil, err
	}
	return retType, sb.unwrapUnions(resultType, resolve), nil, nil
}

// applyNullability applies the member policy: non-null unless nullable.
func applyNullability(t graphql.Type, nullable bool) graphql.Type {
	if nonNull, ok := t.(*graphql.NonNull); ok {
		if nullable {
			return nonNull.Type
		}
		return t
	}
	if nullable {
		return t
	}
	return &graphql.NonNull{Type: t}
}

// functionNullability applies explicit options to a function field, whose
// type is otherwise nullable exactly when the function returns a pointer.
func functionNullability(t graphql.Type, name string, cfg *fieldConfig) graphql.Type {
	switch {
	case name == "id" || cfg.nonNull:
		return applyNullability(t, false)
	case cfg.nullable:
		return applyNullability(t, true)
	}
	return t
}
