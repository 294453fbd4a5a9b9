package schemabuilder

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/iancoleman/strcase"

	"github.com/tinnou/glitr/graphql"
	"github.com/tinnou/glitr/internal"
)

// Kind is the kind of schema type a host type becomes.
type Kind int

const (
	KindObject Kind = iota
	KindInterface
	KindUnion
	KindEnum
	KindInputObject
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindInterface:
		return "interface"
	case KindUnion:
		return "union"
	case KindEnum:
		return "enum"
	case KindInputObject:
		return "input object"
	}
	return "unknown"
}

// TypeDescriptor describes one host type independently of any schema.
type TypeDescriptor struct {
	Kind        Kind
	Name        string
	Description string
	Type        reflect.Type
	// Fields are sorted by name.
	Fields []*FieldDescriptor
	// PossibleTypes are the member types of a union.
	PossibleTypes []reflect.Type
}

// FieldDescriptor describes one eligible member of a host type.
type FieldDescriptor struct {
	// Name is the normalized schema name.
	Name string
	// GoName is the struct field or method the field reads.
	GoName      string
	Type        reflect.Type
	Nullable    bool
	Description string
	Args        []*ArgumentDescriptor
	Connection  bool

	// Index is the struct field path. It is nil for accessor methods.
	Index []int
	// Method is set for accessor methods.
	Method   string
	HasError bool

	// then are composite resolution steps run on the member's value.
	then []interface{}
}

// ArgumentDescriptor describes an argument declared on a member.
type ArgumentDescriptor struct {
	Name         string
	Type         reflect.Type
	DefaultValue interface{}
	Nullable     bool
	Description  string
}

// fieldConfig is member metadata: the data form of a graphql tag. The same
// record configures FieldFunc fields.
type fieldConfig struct {
	name        string
	ignore      bool
	nullable    bool
	nonNull     bool
	description string
	args        []*ArgumentDescriptor
	connection  bool
	then        []interface{}

	// rawArgs are arg= tag specs, parsed once argument types are known.
	rawArgs []string
}

// A FieldOption configures a member (through Member) or a FieldFunc field.
type FieldOption func(*fieldConfig)

// Ignore excludes the member from the schema.
func Ignore() FieldOption {
	return func(c *fieldConfig) { c.ignore = true }
}

// Nullable marks the field nullable. A field named id stays non-null.
func Nullable() FieldOption {
	return func(c *fieldConfig) { c.nullable = true }
}

// NonNull marks the field non-null, overriding a nullable tag.
func NonNull() FieldOption {
	return func(c *fieldConfig) { c.nonNull = true }
}

// Doc sets the field's description.
func Doc(description string) FieldOption {
	return func(c *fieldConfig) { c.description = description }
}

// Rename exposes the member under name instead of its normalized Go name.
func Rename(name string) FieldOption {
	return func(c *fieldConfig) { c.name = name }
}

// AsConnection exposes a slice member as a paginated connection.
func AsConnection() FieldOption {
	return func(c *fieldConfig) { c.connection = true }
}

// Then adds a resolution step run on the field's value. fn has the form
// func([ctx context.Context,] value V[, args map[string]interface{}]) (R[, error]).
// Steps run in order; a nil value skips the remaining steps and resolves the
// field to null. The field's type is the last step's result type.
func Then(fn interface{}) FieldOption {
	return func(c *fieldConfig) { c.then = append(c.then, fn) }
}

// An ArgOption configures an argument declared with Arg.
type ArgOption func(*ArgumentDescriptor)

// Default sets the argument's default value.
func Default(v interface{}) ArgOption {
	return func(a *ArgumentDescriptor) { a.DefaultValue = v }
}

// Required makes the argument non-null.
func Required() ArgOption {
	return func(a *ArgumentDescriptor) { a.Nullable = false }
}

// ArgDoc sets the argument's description.
func ArgDoc(description string) ArgOption {
	return func(a *ArgumentDescriptor) { a.Description = description }
}

// Arg declares an argument of the field. sample is a value of the argument's
// Go type, eg. int64(0) or Genre(0). Arguments are nullable unless Required.
func Arg(name string, sample interface{}, opts ...ArgOption) FieldOption {
	return func(c *fieldConfig) {
		arg := &ArgumentDescriptor{Name: name, Type: reflect.TypeOf(sample), Nullable: true}
		for _, opt := range opts {
			opt(arg)
		}
		c.args = append(c.args, arg)
	}
}

// parseTag parses a graphql struct tag:
//
//     `graphql:"name,nullable,nonnull,connection,arg=first:Int=10,description=..."`
//
// description must come last, since it may contain commas.
func parseTag(tag string) (*fieldConfig, error) {
	cfg := &fieldConfig{}
	if tag == "" {
		return cfg, nil
	}
	parts := strings.Split(tag, ",")
	cfg.name = parts[0]
	if cfg.name == "-" {
		cfg.ignore = true
		return cfg, nil
	}

	for i := 1; i < len(parts); i++ {
		part := parts[i]
		switch {
		case part == "nullable":
			cfg.nullable = true
		case part == "nonnull":
			cfg.nonNull = true
		case part == "connection":
			cfg.connection = true
		case strings.HasPrefix(part, "arg="):
			cfg.rawArgs = append(cfg.rawArgs, strings.TrimPrefix(part, "arg="))
		case strings.HasPrefix(part, "description="):
			cfg.description = strings.TrimPrefix(strings.Join(parts[i:], ","), "description=")
			return cfg, nil
		default:
			return nil, fmt.Errorf("unexpected graphql tag option %q", part)
		}
	}
	return cfg, nil
}

// normalizeAccessor turns an accessor method name into a field name: a
// leading Get or Is followed by an upper-case letter is stripped, and the rest
// becomes lowerCamelCase. GetTitle becomes title, IsPublished becomes
// published.
func normalizeAccessor(name string) string {
	for _, prefix := range []string{"Get", "Is"} {
		rest := strings.TrimPrefix(name, prefix)
		if rest == name || rest == "" {
			continue
		}
		if r, _ := utf8.DecodeRuneInString(rest); unicode.IsUpper(r) {
			return strcase.ToLowerCamel(rest)
		}
	}
	return strcase.ToLowerCamel(name)
}

// normalizeField turns a struct field name into a field name.
func normalizeField(name string) string {
	return strcase.ToLowerCamel(name)
}

func isAccessorName(name string) bool {
	return normalizeAccessor(name) != strcase.ToLowerCamel(name)
}

// candidate is a member considered for a field before eligibility is decided.
type candidate struct {
	goName   string
	name     string
	typ      reflect.Type
	index    []int
	method   string
	hasError bool
	// tag is the member's own tag; backing is its backing field's tag.
	tag     *fieldConfig
	backing *fieldConfig
}

// argTypes resolves the types and defaults named in arg= tags.
type argTypes interface {
	argType(name string) (reflect.Type, bool)
	argDefault(typ reflect.Type, raw string) (interface{}, error)
}

// extractor produces field descriptors for a host type. It has no schema
// knowledge beyond resolving arg= tags.
type extractor struct {
	args   argTypes
	logf   func(msg string, tags ...interface{})
	config *Object
}

// describe builds the descriptor of an object or interface host type.
func (e *extractor) describe(typ reflect.Type, kind Kind, name string) (*TypeDescriptor, error) {
	var candidates []*candidate
	var err error
	if typ.Kind() == reflect.Interface {
		candidates, err = e.interfaceCandidates(typ, name)
	} else {
		candidates, err = e.structCandidates(typ, name)
	}
	if err != nil {
		return nil, err
	}

	desc := &TypeDescriptor{
		Kind:        kind,
		Name:        name,
		Description: e.config.Description,
		Type:        typ,
	}

	seen := make(map[string]*candidate)
	for _, c := range candidates {
		field, err := e.field(name, c)
		if err != nil {
			return nil, err
		}
		if field == nil {
			continue
		}
		if prev, ok := seen[field.Name]; ok {
			return nil, graphql.NewConfigError(name, field.Name, "duplicate field: members %s and %s both map to %q", prev.goName, c.goName, field.Name)
		}
		seen[field.Name] = c
		desc.Fields = append(desc.Fields, field)
	}

	sort.Slice(desc.Fields, func(i, j int) bool {
		return desc.Fields[i].Name < desc.Fields[j].Name
	})
	return desc, nil
}

// structCandidates lists the exported fields and the Get/Is accessor methods
// of a struct, pairing each with its backing field.
func (e *extractor) structCandidates(typ reflect.Type, typeName string) ([]*candidate, error) {
	var candidates []*candidate
	backing := make(map[string]*fieldConfig)

	for _, f := range reflect.VisibleFields(typ) {
		if f.Anonymous {
			continue
		}
		tag, err := parseTag(f.Tag.Get("graphql"))
		if err != nil {
			return nil, graphql.NewConfigError(typeName, f.Name, "%s", err)
		}
		backing[normalizeField(f.Name)] = tag

		if !f.IsExported() || !internal.ExportedPath(typ, f.Index) {
			continue
		}
		if promotedFromMarker(typ, f.Index) {
			continue
		}
		candidates = append(candidates, &candidate{
			goName: f.Name,
			name:   normalizeField(f.Name),
			typ:    f.Type,
			index:  f.Index,
			tag:    tag,
		})
	}

	ptr := reflect.PtrTo(typ)
	for i := 0; i < ptr.NumMethod(); i++ {
		m := ptr.Method(i)
		c, ok := e.accessor(m.Name, m.Type, 1)
		if !ok {
			continue
		}
		c.backing = backing[c.name]
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// interfaceCandidates lists the accessor methods of an interface.
func (e *extractor) interfaceCandidates(typ reflect.Type, typeName string) ([]*candidate, error) {
	var candidates []*candidate
	for i := 0; i < typ.NumMethod(); i++ {
		m := typ.Method(i)
		if c, ok := e.accessor(m.Name, m.Type, 0); ok {
			candidates = append(candidates, c)
		}
	}
	return candidates, nil
}

// accessor reports whether a method is accessor-shaped: named Get* or Is*, no
// arguments past the receiver, returning T or (T, error).
func (e *extractor) accessor(name string, fn reflect.Type, receivers int) (*candidate, bool) {
	if !isAccessorName(name) || name == "GetGraphQLTypeName" {
		return nil, false
	}
	if fn.NumIn() != receivers {
		e.logf("skipping accessor with arguments", "method", name)
		return nil, false
	}
	switch {
	case fn.NumOut() == 1 && fn.Out(0) != errType:
	case fn.NumOut() == 2 && fn.Out(0) != errType && fn.Out(1) == errType:
	default:
		e.logf("skipping accessor with unsupported results", "method", name)
		return nil, false
	}
	return &candidate{
		goName:   name,
		name:     normalizeAccessor(name),
		typ:      fn.Out(0),
		method:   name,
		hasError: fn.NumOut() == 2,
	}, true
}

// field decides eligibility of a candidate and fills in its metadata. It
// returns nil for excluded members.
func (e *extractor) field(typeName string, c *candidate) (*FieldDescriptor, error) {
	meta := e.config.members[c.goName]
	tag := c.tag
	if tag == nil {
		tag = &fieldConfig{}
	}
	backing := c.backing
	if backing == nil {
		backing = &fieldConfig{}
		if c.method != "" {
			e.logf("accessor has no backing field", "type", typeName, "method", c.goName)
		}
	}

	if tag.ignore || backing.ignore || (meta != nil && meta.ignore) {
		e.logf("skipping excluded member", "type", typeName, "member", c.goName)
		return nil, nil
	}
	if deref(c.typ).Kind() == reflect.Map {
		e.logf("skipping map member", "type", typeName, "member", c.goName)
		return nil, nil
	}

	field := &FieldDescriptor{
		Name:     c.name,
		GoName:   c.goName,
		Type:     c.typ,
		Index:    c.index,
		Method:   c.method,
		HasError: c.hasError,
	}
	if tag.name != "" {
		field.Name = tag.name
	}
	if meta != nil && meta.name != "" {
		field.Name = meta.name
	}

	nullable := tag.nullable || backing.nullable
	nonNull := tag.nonNull || backing.nonNull
	if meta != nil {
		nullable = nullable || meta.nullable
		nonNull = nonNull || meta.nonNull
	}
	field.Nullable = nullable && !nonNull
	if field.Name == "id" {
		field.Nullable = false
	}

	field.Description = firstNonEmpty(metaDescription(meta), tag.description, backing.description)
	field.Connection = tag.connection || backing.connection || (meta != nil && meta.connection)
	if meta != nil {
		field.then = meta.then
	}

	// Arguments come from member metadata, falling back to the member's tag
	// and then to its backing field.
	switch {
	case meta != nil && len(meta.args) > 0:
		field.Args = meta.args
	default:
		raw := tag.rawArgs
		if len(raw) == 0 {
			raw = backing.rawArgs
		}
		for _, spec := range raw {
			arg, err := e.parseArg(spec)
			if err != nil {
				return nil, graphql.NewConfigError(typeName, field.Name, "%s", err)
			}
			field.Args = append(field.Args, arg)
		}
	}
	return field, nil
}

// parseArg parses an arg= tag: name:Type[!][=default].
func (e *extractor) parseArg(spec string) (*ArgumentDescriptor, error) {
	name, rest, ok := strings.Cut(spec, ":")
	if !ok || name == "" || rest == "" {
		return nil, fmt.Errorf("bad argument %q: want name:Type", spec)
	}
	typeName, rawDefault, hasDefault := strings.Cut(rest, "=")
	required := strings.HasSuffix(typeName, "!")
	typeName = strings.TrimSuffix(typeName, "!")

	typ, ok := e.args.argType(typeName)
	if !ok {
		return nil, fmt.Errorf("bad argument %q: unknown type %s", spec, typeName)
	}
	arg := &ArgumentDescriptor{Name: name, Type: typ, Nullable: !required}
	if hasDefault {
		v, err := e.args.argDefault(typ, rawDefault)
		if err != nil {
			return nil, fmt.Errorf("bad argument %q: %s", spec, err)
		}
		arg.DefaultValue = v
	}
	return arg, nil
}

// promotedFromMarker reports whether the field at index is reached through an
// embedded Union marker.
func promotedFromMarker(typ reflect.Type, index []int) bool {
	for _, i := range index[:len(index)-1] {
		f := deref(typ).Field(i)
		if deref(f.Type) == unionType {
			return true
		}
		typ = f.Type
	}
	return false
}

func metaDescription(meta *fieldConfig) string {
	if meta == nil {
		return ""
	}
	return meta.description
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}
