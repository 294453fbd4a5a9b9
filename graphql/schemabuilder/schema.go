package schemabuilder

import (
	"reflect"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tinnou/glitr/graphql"
	"github.com/tinnou/glitr/internal"
	"github.com/tinnou/glitr/logger"
	"github.com/tinnou/glitr/validation"
)

// DefaultBatchMaxSize caps the number of sources handed to a batch function
// in one call.
const DefaultBatchMaxSize = 100

// Schema is a struct that can be used to build out a GraphQL schema.  Functions
// can be registered against the "Mutation" and "Query" objects in order to
// build out a full GraphQL schema.
type Schema struct {
	objects map[reflect.Type]*Object
	inputs  map[reflect.Type]*Object
	unions  map[reflect.Type]*unionDecl
	enums   map[reflect.Type]*enumDecl
	// order lists registered types in registration order so that builds are
	// deterministic.
	order []reflect.Type

	relayMutations []*relayMutation
	errs           []error

	scalars        map[reflect.Type]string
	logger         logger.Logger
	decoder        Decoder
	tracerProvider trace.TracerProvider
	registerer     prometheus.Registerer
	batchMaxSize   int
}

// SchemaOption specifies functionality for the schema.
type SchemaOption func(*Schema)

// WithScalars specifies a set of scalars.
func WithScalars(scalars map[reflect.Type]string) SchemaOption {
	return func(s *Schema) {
		for typ, name := range scalars {
			s.scalars[typ] = name
		}
	}
}

// WithLogger sets the logger used while building and for mutation failures.
func WithLogger(l logger.Logger) SchemaOption {
	return func(s *Schema) {
		s.logger = l
	}
}

// WithDecoder replaces the decoder that turns mutation and argument input
// maps into Go values.
func WithDecoder(d Decoder) SchemaOption {
	return func(s *Schema) {
		s.decoder = d
	}
}

// WithTracerProvider sets where mutation spans are recorded. Defaults to the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) SchemaOption {
	return func(s *Schema) {
		s.tracerProvider = tp
	}
}

// WithRegisterer registers the mutation outcome counter with r.
func WithRegisterer(r prometheus.Registerer) SchemaOption {
	return func(s *Schema) {
		s.registerer = r
	}
}

// WithBatchMaxSize limits how many sources a batched field receives per call.
func WithBatchMaxSize(n int) SchemaOption {
	return func(s *Schema) {
		s.batchMaxSize = n
	}
}

// NewSchema creates a new schema.
func NewSchema(opts ...SchemaOption) *Schema {
	schema := &Schema{
		objects:      make(map[reflect.Type]*Object),
		inputs:       make(map[reflect.Type]*Object),
		unions:       make(map[reflect.Type]*unionDecl),
		enums:        make(map[reflect.Type]*enumDecl),
		scalars:      make(map[reflect.Type]string),
		logger:       logger.Nop(),
		decoder:      NewJSONDecoder(),
		batchMaxSize: DefaultBatchMaxSize,
	}

	for _, o := range opts {
		o(schema)
	}
	if schema.tracerProvider == nil {
		schema.tracerProvider = otel.GetTracerProvider()
	}

	return schema
}

// errorf records a registration error; Build reports the first one.
func (s *Schema) errorf(typ, field, format string, a ...interface{}) {
	s.errs = append(s.errs, graphql.NewConfigError(typ, field, format, a...))
}

// OpjectOption is an interface for the variadic options that can be passed
// to a Object for configuring options on that object.
type ObjectOption interface {
	apply(*Schema, *Object)
}

// objectOptionFunc is a helper to define ObjectOptions when creating an object
type objectOptionFunc func(*Schema, *Object)

func (f objectOptionFunc) apply(s *Schema, m *Object) { f(s, m) }

// Description documents the type.
func Description(description string) ObjectOption {
	return objectOptionFunc(func(s *Schema, o *Object) {
		o.Description = description
	})
}

// Member attaches metadata to the struct field or accessor method goName, as
// a tag would. It is how types without tags (or from other packages) are
// configured.
func Member(goName string, opts ...FieldOption) ObjectOption {
	return objectOptionFunc(func(s *Schema, o *Object) {
		if o.members == nil {
			o.members = make(map[string]*fieldConfig)
		}
		cfg, ok := o.members[goName]
		if !ok {
			cfg = &fieldConfig{}
			o.members[goName] = cfg
		}
		for _, opt := range opts {
			opt(cfg)
		}
	})
}

// Interface registers a Go interface as a GraphQL interface. typ should be a
// nil pointer to the interface, eg. (*Shape)(nil). Every registered object
// whose pointer implements the interface becomes one of its possible types.
func (s *Schema) Interface(name string, typ interface{}, options ...ObjectOption) *Object {
	t := reflect.TypeOf(typ)
	if t == nil || t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Interface {
		s.errorf(name, "", "Interface expects a nil pointer to an interface, got %v", t)
		return &Object{Name: name}
	}
	iface := s.object(name, t.Elem(), typ, options)
	iface.IsInterface = true
	return iface
}

// Object registers a struct as a GraphQL Object in our Schema.
// (https://facebook.github.io/graphql/June2018/#sec-Objects)
// We'll read the fields of the struct to determine it's basic "Fields" and
// we'll return an Object struct that we can use to register custom
// relationships and fields on the object. An empty name defaults to the Go
// type's name.
func (s *Schema) Object(name string, typ interface{}, options ...ObjectOption) *Object {
	t := reflect.TypeOf(typ)
	if t == nil {
		s.errorf(name, "", "Object expects a struct value, got nil")
		return &Object{Name: name}
	}
	t = deref(t)
	if t.Kind() != reflect.Struct {
		s.errorf(name, "", "object.Type should be a struct, not %s", t.String())
		return &Object{Name: name}
	}
	return s.object(name, t, typ, options)
}

func (s *Schema) object(name string, t reflect.Type, typ interface{}, options []ObjectOption) *Object {
	if object, ok := s.objects[t]; ok {
		if name != "" && object.Name != name {
			s.errorf(name, "", "re-registered %s with a different name (was %s)", t, object.Name)
		}
		for _, opt := range options {
			opt.apply(s, object)
		}
		return object
	}

	object := &Object{
		Name: name,
		Type: typ,
	}
	s.objects[t] = object
	s.order = append(s.order, t)

	for _, opt := range options {
		opt.apply(s, object)
	}
	return object
}

// InputObject configures the input object built for the struct typ: its name
// (defaulting to the type's name with an "Input" suffix), description and
// member metadata. Structs used as arguments or mutation input do not need
// to be registered.
func (s *Schema) InputObject(name string, typ interface{}, options ...ObjectOption) *Object {
	t := reflect.TypeOf(typ)
	if t == nil || deref(t).Kind() != reflect.Struct {
		s.errorf(name, "", "InputObject expects a struct value, got %v", t)
		return &Object{Name: name}
	}
	t = deref(t)
	input, ok := s.inputs[t]
	if !ok {
		input = &Object{Name: name, Type: typ}
		s.inputs[t] = input
	}
	for _, opt := range options {
		opt.apply(s, input)
	}
	return input
}

type query struct{}

// Query returns an Object struct that we can use to register all the top level
// graphql query functions we'd like to expose.
func (s *Schema) Query() *Object {
	return s.Object("Query", query{})
}

type mutation struct{}

// Mutation returns an Object struct that we can use to register all the top level
// graphql mutations functions we'd like to expose. Relay mutations registered
// with RelayMutation are added to the same object.
func (s *Schema) Mutation() *Object {
	return s.Object("Mutation", mutation{})
}

var (
	queryType    = reflect.TypeOf(query{})
	mutationType = reflect.TypeOf(mutation{})
)

// Build takes the schema we have built on our Query and Mutation starting
// points and builds a full graphql.Schema we can use to execute and run
// queries.  Essentially we read through all the methods we've attached to our
// Query and Mutation Objects and ensure that those functions are returning
// other Objects that we can resolve in our GraphQL graph.
//
// Types are visited in a fixed order (Query, Mutation, then registrations in
// the order they were made), so two builds from the same registrations are
// identical. No schema is returned if any part fails.
func (s *Schema) Build() (*graphql.Schema, error) {
	if len(s.errs) > 0 {
		return nil, s.errs[0]
	}

	s.Query()
	s.Mutation()

	sb := newSchemaBuilder(s)

	queryTyp, err := sb.getType(queryType)
	if err != nil {
		return nil, err
	}
	mutationTyp, err := sb.getType(mutationType)
	if err != nil {
		return nil, err
	}

	for _, t := range s.order {
		if t == queryType || t == mutationType {
			continue
		}
		if _, err := sb.getType(t); err != nil {
			return nil, err
		}
	}
	for _, t := range s.inputOrder() {
		if _, err := sb.getInputType(t); err != nil {
			return nil, err
		}
	}

	if err := sb.finish(); err != nil {
		return nil, err
	}

	built := &graphql.Schema{
		Query: graphql.Named(queryTyp).(*graphql.Object),
		Types: sb.named,
	}
	if mutationObj := graphql.Named(mutationTyp).(*graphql.Object); len(mutationObj.Fields) > 0 {
		built.Mutation = mutationObj
	} else {
		delete(built.Types, mutationObj.Name)
	}
	if len(built.Query.Fields) == 0 {
		return nil, graphql.NewConfigError("Query", "", "the query root has no fields")
	}
	return built, nil
}

// inputOrder returns explicitly configured input types sorted by their Go
// name.
func (s *Schema) inputOrder() []reflect.Type {
	types := make([]reflect.Type, 0, len(s.inputs))
	for t := range s.inputs {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		return types[i].String() < types[j].String()
	})
	return types
}

// MustBuildSchema builds a schema and panics if an error occurs.
func (s *Schema) MustBuild() *graphql.Schema {
	built, err := s.Build()
	if err != nil {
		panic(err)
	}
	return built
}

// Roots declares the root fields of a schema built with BuildSchema.
type Roots struct {
	// Query fields, by name.
	Query Methods
	// Mutation fields that are not Relay mutations, by name.
	Mutation Methods
	// RelayMutations are added to the mutation root in order.
	RelayMutations []RelayMutation
}

// RelayMutation declares a mutation run through the decode, validate,
// execute and envelope pipeline. See Schema.RelayMutation.
type RelayMutation struct {
	Name        string
	Input       interface{}
	Handler     interface{}
	Validator   validation.Validator
	Description string
}

// BuildSchema is the single entry point for building a schema from a set of
// host types and explicitly declared roots. Each element of types is a Spec, a
// struct value (registered as an object) or a nil pointer to an interface
// (registered as an interface).
func BuildSchema(types []interface{}, roots Roots, opts ...SchemaOption) (*graphql.Schema, error) {
	s := NewSchema(opts...)

	for _, typ := range types {
		switch typ := typ.(type) {
		case Spec:
			s.register(&typ)
		case *Spec:
			s.register(typ)
		default:
			t := reflect.TypeOf(typ)
			if t != nil && t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Interface {
				s.Interface("", typ)
			} else {
				s.Object("", typ)
			}
		}
	}

	query := s.Query()
	for _, name := range sortedKeys(roots.Query) {
		query.FieldFunc(name, roots.Query[name])
	}
	mutation := s.Mutation()
	for _, name := range sortedKeys(roots.Mutation) {
		mutation.FieldFunc(name, roots.Mutation[name])
	}
	for _, m := range roots.RelayMutations {
		var opts []MutationOption
		if m.Validator != nil {
			opts = append(opts, WithValidator(m.Validator))
		}
		if m.Description != "" {
			opts = append(opts, MutationDescription(m.Description))
		}
		s.RelayMutation(m.Name, m.Input, m.Handler, opts...)
	}

	return s.Build()
}

// register adds a Spec as an object.
func (s *Schema) register(spec *Spec) {
	options := append([]ObjectOption(nil), spec.Options...)
	if spec.Description != "" {
		options = append(options, Description(spec.Description))
	}
	object := s.Object(spec.Name, spec.Type, options...)
	for _, name := range sortedKeys(spec.Methods) {
		object.FieldFunc(name, spec.Methods[name])
	}
}

func sortedKeys(methods Methods) []string {
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var deref = internal.Deref

func typeOf(v interface{}) reflect.Type {
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Ptr {
		return t.Elem()
	}
	return t
}
