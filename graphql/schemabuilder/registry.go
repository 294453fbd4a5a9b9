package schemabuilder

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/tinnou/glitr/graphql"
	"github.com/tinnou/glitr/internal"
)

// schemaBuilder is a struct for holding all the graph information for types as
// we build out graphql types for our graphql schema.  Resolved graphQL "types"
// are stored in the type map which we can use to see sections of the graph.
//
// Every host type has at most one entry. While a type's factory runs, the type
// is marked as building; recursive registrations of it get a
// graphql.Reference by name, and finish replaces every reference with the
// finished definition.
type schemaBuilder struct {
	*Schema

	types      map[reflect.Type]graphql.Type
	inputTypes map[reflect.Type]graphql.Type
	// building holds the names of types whose factories are running.
	building      map[reflect.Type]string
	inputBuilding map[reflect.Type]string

	// named holds every finished named type by schema name.
	named map[string]graphql.Type
	// identities maps a schema name to whatever claimed it.
	identities map[string]claimant
	// goTypes maps concrete struct types to their object names.
	goTypes map[reflect.Type]string

	interfaces   map[reflect.Type]*graphql.Interface
	unionMembers map[string][]string
	connections  map[string]graphql.Type

	metrics *mutationMetrics
}

func newSchemaBuilder(s *Schema) *schemaBuilder {
	return &schemaBuilder{
		Schema:        s,
		types:         make(map[reflect.Type]graphql.Type),
		inputTypes:    make(map[reflect.Type]graphql.Type),
		building:      make(map[reflect.Type]string),
		inputBuilding: make(map[reflect.Type]string),
		named:         make(map[string]graphql.Type),
		identities:    make(map[string]claimant),
		goTypes:       make(map[reflect.Type]string),
		interfaces:    make(map[reflect.Type]*graphql.Interface),
		unionMembers:  make(map[string][]string),
		connections:   make(map[string]graphql.Type),
		metrics:       newMutationMetrics(s.registerer, s.logger),
	}
}

func (sb *schemaBuilder) objectConfig(typ reflect.Type) *Object {
	if object, ok := sb.objects[typ]; ok {
		return object
	}
	return &Object{}
}

func (sb *schemaBuilder) extractor(config *Object) *extractor {
	return &extractor{args: sb, logf: sb.logger.Debug, config: config}
}

var validName = regexp.MustCompile(`^[_A-Za-z][_0-9A-Za-z]*$`)

// claimant is what claims a schema name: a host type, in the output or the
// input namespace, or a generated type identified by label.
type claimant struct {
	typ   reflect.Type
	input bool
	label string
}

func outputClaim(t reflect.Type) claimant { return claimant{typ: t} }

func inputClaim(t reflect.Type) claimant { return claimant{typ: t, input: true} }

func generatedClaim(label string) claimant { return claimant{label: label} }

func (c claimant) String() string {
	switch {
	case c.typ == nil:
		return c.label
	case c.input:
		return "input " + identity(c.typ)
	}
	return identity(c.typ)
}

// claim reserves a schema name. Two different claimants may not share a
// name, even when their Go types print the same.
func (sb *schemaBuilder) claim(name string, c claimant) error {
	if !validName.MatchString(name) {
		return graphql.NewConfigError(c.String(), "", "invalid schema type name %q", name)
	}
	if prev, ok := sb.identities[name]; ok && prev != c {
		return graphql.NewConfigError(name, "", "duplicate schema type name: claimed by both %s and %s", prev, c)
	}
	sb.identities[name] = c
	return nil
}

func identity(t reflect.Type) string {
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// typeName returns the registered name of a host type, or its Go name.
func (sb *schemaBuilder) typeName(t reflect.Type) string {
	if object, ok := sb.objects[t]; ok && object.Name != "" {
		return object.Name
	}
	if union, ok := sb.unions[t]; ok && union.name != "" {
		return union.name
	}
	if enum, ok := sb.enums[t]; ok && enum.name != "" {
		return enum.name
	}
	return t.Name()
}

// register returns the schema type of a named host type, building it with
// factory on first use.
func (sb *schemaBuilder) register(t reflect.Type, kind Kind, factory func(reflect.Type, string) (graphql.Type, error)) (graphql.Type, error) {
	if typ, ok := sb.types[t]; ok {
		return typ, nil
	}
	if name, ok := sb.building[t]; ok {
		sb.logger.Debug("forward reference", "type", name)
		return &graphql.Reference{Name: name}, nil
	}

	name := sb.typeName(t)
	if err := sb.claim(name, outputClaim(t)); err != nil {
		return nil, err
	}

	sb.logger.Debug("registering type", "type", name, "kind", kind)
	sb.building[t] = name
	typ, err := factory(t, name)
	delete(sb.building, t)
	if err != nil {
		return nil, err
	}

	sb.types[t] = typ
	sb.named[name] = typ
	return typ, nil
}

// getType is the "core" function of the GraphQL schema builder.  It takes in a
// reflect type and builds the appropriate graphQL "type".  This includes going
// through struct fields and attached object methods to generate the entire
// graphql graph of possible queries.  This function will be called recursively
// for types as we go through the graph.
//
// Pointers and interfaces are nullable; everything else is wrapped in
// NonNull. Field policy is applied on top by the caller.
func (sb *schemaBuilder) getType(t reflect.Type) (graphql.Type, error) {
	if t.Kind() == reflect.Ptr {
		typ, err := sb.getType(t.Elem())
		if err != nil {
			return nil, err
		}
		if nonNull, ok := typ.(*graphql.NonNull); ok {
			return nonNull.Type, nil
		}
		return typ, nil
	}

	// Support scalars and optional scalars. Scalars have precedence over structs
	// to have eg. time.Time function as a scalar.
	if enum, ok := sb.enums[t]; ok {
		typ, err := sb.register(t, KindEnum, func(t reflect.Type, name string) (graphql.Type, error) {
			return sb.buildEnum(t, name, enum)
		})
		if err != nil {
			return nil, err
		}
		return &graphql.NonNull{Type: typ}, nil
	}
	if name, ok := sb.getScalar(t); ok {
		return &graphql.NonNull{Type: sb.scalar(name)}, nil
	}

	switch t.Kind() {
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return nil, graphql.NewConfigError(t.String(), "", "bad type: empty interfaces cannot be exposed")
		}
		if union, ok := sb.unions[t]; ok {
			return sb.register(t, KindUnion, func(t reflect.Type, name string) (graphql.Type, error) {
				return sb.buildUnion(t, name, union)
			})
		}
		return sb.register(t, KindInterface, sb.buildInterface)

	case reflect.Struct:
		var typ graphql.Type
		var err error
		if isMarkerUnion(t) {
			typ, err = sb.register(t, KindUnion, sb.buildMarkerUnion)
		} else {
			typ, err = sb.register(t, KindObject, sb.buildObject)
		}
		if err != nil {
			return nil, err
		}
		return &graphql.NonNull{Type: typ}, nil

	case reflect.Slice, reflect.Array:
		typ, err := sb.getType(t.Elem())
		if err != nil {
			return nil, err
		}
		return &graphql.NonNull{Type: &graphql.List{Type: typ}}, nil

	case reflect.Map:
		return nil, graphql.NewConfigError(t.String(), "", "bad type: maps have a key and a value type, fields need exactly one element type; model the entries as a list of objects")

	default:
		return nil, graphql.NewConfigError(t.String(), "", "bad type: should be a scalar, slice, struct or interface type")
	}
}

// scalar returns the shared definition of a scalar.
func (sb *schemaBuilder) scalar(name string) *graphql.Scalar {
	if typ, ok := sb.named[name].(*graphql.Scalar); ok {
		return typ
	}
	typ := &graphql.Scalar{Type: name}
	sb.named[name] = typ
	sb.identities[name] = generatedClaim("scalar " + name)
	return typ
}

// argType resolves a type named in an arg= tag.
func (sb *schemaBuilder) argType(name string) (reflect.Type, bool) {
	if strings.HasPrefix(name, "[") && strings.HasSuffix(name, "]") {
		elem, ok := sb.argType(name[1 : len(name)-1])
		if !ok {
			return nil, false
		}
		return reflect.SliceOf(elem), true
	}
	if t, ok := builtinArgTypes[name]; ok {
		return t, true
	}
	for t := range sb.enums {
		if sb.typeName(t) == name {
			return t, true
		}
	}
	for t, scalar := range sb.scalars {
		if scalar == name {
			return t, true
		}
	}
	return nil, false
}

// argDefault parses the default of an arg= tag.
func (sb *schemaBuilder) argDefault(typ reflect.Type, raw string) (interface{}, error) {
	if enum, ok := sb.enums[typ]; ok {
		for _, v := range enum.values {
			if v.Name == raw {
				return v.Value, nil
			}
		}
		return nil, fmt.Errorf("%s is not a value of %s", raw, sb.typeName(typ))
	}
	if typ.Kind() == reflect.String {
		return reflect.ValueOf(raw).Convert(typ).Interface(), nil
	}
	target := reflect.New(typ)
	if err := jsonAPI.UnmarshalFromString(raw, target.Interface()); err != nil {
		return nil, err
	}
	return target.Elem().Interface(), nil
}

// finish resolves forward references and links abstract types to their
// possible types. It runs once every type has been registered.
func (sb *schemaBuilder) finish() error {
	for _, name := range sortedNames(sb.named) {
		switch typ := sb.named[name].(type) {
		case *graphql.Object:
			if err := sb.resolveFields(typ.Fields); err != nil {
				return err
			}
		case *graphql.Interface:
			if err := sb.resolveFields(typ.Fields); err != nil {
				return err
			}
		case *graphql.InputObject:
			for _, field := range typ.Fields {
				resolved, err := sb.resolveReference(field.Type)
				if err != nil {
					return err
				}
				field.Type = resolved
			}
		}
	}

	// Link interfaces and their implementations.
	ifaceTypes := make([]reflect.Type, 0, len(sb.interfaces))
	for t := range sb.interfaces {
		ifaceTypes = append(ifaceTypes, t)
	}
	sort.Slice(ifaceTypes, func(i, j int) bool {
		return sb.interfaces[ifaceTypes[i]].Name < sb.interfaces[ifaceTypes[j]].Name
	})
	for _, it := range ifaceTypes {
		iface := sb.interfaces[it]
		for goType, name := range sb.goTypes {
			if !reflect.PtrTo(goType).Implements(it) {
				continue
			}
			object := sb.named[name].(*graphql.Object)
			iface.PossibleTypes[name] = object
			object.Interfaces = append(object.Interfaces, iface)
		}
		if len(iface.PossibleTypes) == 0 {
			sb.logger.Warn("interface has no registered implementations", "interface", iface.Name)
		}
		iface.ResolveType = sb.typeResolver(iface.Name, iface.PossibleTypes)
	}

	for _, name := range sortedNames(sb.named) {
		union, ok := sb.named[name].(*graphql.Union)
		if !ok {
			continue
		}
		for _, member := range sb.unionMembers[name] {
			object, ok := sb.named[member].(*graphql.Object)
			if !ok {
				return graphql.NewConfigError(name, "", "union member %s is not a registered object", member)
			}
			union.Types[member] = object
		}
		union.ResolveType = sb.typeResolver(union.Name, union.Types)
	}
	return nil
}

func (sb *schemaBuilder) resolveFields(fields map[string]*graphql.Field) error {
	for _, field := range fields {
		resolved, err := sb.resolveReference(field.Type)
		if err != nil {
			return err
		}
		field.Type = resolved
		for _, arg := range field.Args {
			resolved, err := sb.resolveReference(arg.Type)
			if err != nil {
				return err
			}
			arg.Type = resolved
		}
	}
	return nil
}

// resolveReference replaces forward references in t with the named
// definitions they stand for.
func (sb *schemaBuilder) resolveReference(t graphql.Type) (graphql.Type, error) {
	switch typ := t.(type) {
	case *graphql.Reference:
		resolved, ok := sb.named[typ.Name]
		if !ok {
			return nil, graphql.NewConfigError(typ.Name, "", "referenced but never defined")
		}
		return resolved, nil
	case *graphql.List:
		inner, err := sb.resolveReference(typ.Type)
		if err != nil {
			return nil, err
		}
		return &graphql.List{Type: inner}, nil
	case *graphql.NonNull:
		inner, err := sb.resolveReference(typ.Type)
		if err != nil {
			return nil, err
		}
		return &graphql.NonNull{Type: inner}, nil
	}
	return t, nil
}

// typeResolver is the Interface Resolution Index entry of one abstract type.
// It captures a snapshot of the concrete types, so it never reads builder
// state during execution.
func (sb *schemaBuilder) typeResolver(abstract string, possible map[string]*graphql.Object) graphql.TypeResolver {
	goTypes := make(map[reflect.Type]string, len(sb.goTypes))
	for t, name := range sb.goTypes {
		goTypes[t] = name
	}
	return func(value interface{}) (string, error) {
		return resolveRuntimeType(abstract, goTypes, possible, value)
	}
}

// resolveRuntimeType maps a value of an interface or union to the name of its
// concrete object. An explicit discriminant (TypeNamer) wins over the value's
// Go type.
func resolveRuntimeType(abstract string, goTypes map[reflect.Type]string, possible map[string]*graphql.Object, value interface{}) (string, error) {
	v := internal.Indirect(reflect.ValueOf(value))
	if !v.IsValid() {
		return "", &graphql.ResolutionError{Abstract: abstract, GoType: fmt.Sprintf("%T", value), Reason: "value is nil"}
	}

	var name string
	if namer, ok := asTypeNamer(v); ok {
		name = namer.GetGraphQLTypeName()
	} else {
		var ok bool
		if name, ok = goTypes[v.Type()]; !ok {
			return "", &graphql.ResolutionError{Abstract: abstract, GoType: v.Type().String(), Reason: "type is not registered"}
		}
	}

	if _, ok := possible[name]; !ok {
		return "", &graphql.ResolutionError{Abstract: abstract, GoType: v.Type().String(), Reason: fmt.Sprintf("%s is not a possible type", name)}
	}
	return name, nil
}

func asTypeNamer(v reflect.Value) (TypeNamer, bool) {
	if namer, ok := v.Interface().(TypeNamer); ok {
		return namer, true
	}
	ptr := reflect.New(v.Type())
	ptr.Elem().Set(v)
	namer, ok := ptr.Interface().(TypeNamer)
	return namer, ok
}

func sortedNames(types map[string]graphql.Type) []string {
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
