package schemabuilder

import (
	"context"
	"reflect"
	"sort"
	"strings"

	"github.com/samsarahq/go/oops"

	"github.com/tinnou/glitr/graphql"
	"github.com/tinnou/glitr/internal"
)

// getInputType is getType for values supplied by clients: arguments and
// mutation input. Structs become input objects.
func (sb *schemaBuilder) getInputType(t reflect.Type) (graphql.Type, error) {
	if t.Kind() == reflect.Ptr {
		typ, err := sb.getInputType(t.Elem())
		if err != nil {
			return nil, err
		}
		if nonNull, ok := typ.(*graphql.NonNull); ok {
			return nonNull.Type, nil
		}
		return typ, nil
	}

	if _, ok := sb.enums[t]; ok {
		return sb.getType(t)
	}
	if _, ok := sb.getScalar(t); ok {
		return sb.getType(t)
	}

	switch t.Kind() {
	case reflect.Struct:
		typ, err := sb.registerInput(t)
		if err != nil {
			return nil, err
		}
		return &graphql.NonNull{Type: typ}, nil

	case reflect.Slice, reflect.Array:
		typ, err := sb.getInputType(t.Elem())
		if err != nil {
			return nil, err
		}
		return &graphql.NonNull{Type: &graphql.List{Type: typ}}, nil

	default:
		return nil, graphql.NewConfigError(t.String(), "", "bad input type: should be a scalar, enum, slice or struct type")
	}
}

// inputName is the schema name of an input object: the configured name, or
// the Go name with an Input suffix.
func (sb *schemaBuilder) inputName(t reflect.Type) string {
	if input, ok := sb.inputs[t]; ok && input.Name != "" {
		return input.Name
	}
	if strings.HasSuffix(t.Name(), "Input") {
		return t.Name()
	}
	return t.Name() + "Input"
}

// registerInput is register for input objects, which live in their own
// namespace of host types: a struct may be both an object and an input.
func (sb *schemaBuilder) registerInput(t reflect.Type) (graphql.Type, error) {
	if typ, ok := sb.inputTypes[t]; ok {
		return typ, nil
	}
	if name, ok := sb.inputBuilding[t]; ok {
		return &graphql.Reference{Name: name}, nil
	}

	name := sb.inputName(t)
	if err := sb.claim(name, inputClaim(t)); err != nil {
		return nil, err
	}

	sb.logger.Debug("registering type", "type", name, "kind", KindInputObject)
	sb.inputBuilding[t] = name
	fields, err := sb.inputFields(t)
	delete(sb.inputBuilding, t)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, graphql.NewConfigError(name, "", "input object has no fields")
	}

	typ := &graphql.InputObject{
		Name:        name,
		Description: sb.inputConfig(t).Description,
		Fields:      fields,
	}
	sb.inputTypes[t] = typ
	sb.named[name] = typ
	return typ, nil
}

func (sb *schemaBuilder) inputConfig(t reflect.Type) *Object {
	if input, ok := sb.inputs[t]; ok {
		return input
	}
	return &Object{}
}

// inputFields lists the writable fields of a struct. A field's name is its
// json name, so that decoding and the schema agree.
func (sb *schemaBuilder) inputFields(t reflect.Type) (map[string]*graphql.InputField, error) {
	config := sb.inputConfig(t)
	fields := make(map[string]*graphql.InputField)
	goNames := make(map[string]string)

	for _, f := range reflect.VisibleFields(t) {
		if f.Anonymous || !f.IsExported() || !internal.ExportedPath(t, f.Index) {
			continue
		}
		name, ok := jsonName(f)
		if !ok {
			continue
		}
		tag, err := parseTag(f.Tag.Get("graphql"))
		if err != nil {
			return nil, graphql.NewConfigError(t.Name(), f.Name, "%s", err)
		}
		meta := config.members[f.Name]
		if tag.ignore || (meta != nil && meta.ignore) {
			continue
		}
		if deref(f.Type).Kind() == reflect.Map {
			sb.logger.Debug("skipping map member", "type", t.Name(), "member", f.Name)
			continue
		}
		if prev, ok := goNames[name]; ok {
			return nil, graphql.NewConfigError(t.Name(), name, "duplicate field: members %s and %s both map to %q", prev, f.Name, name)
		}
		goNames[name] = f.Name

		typ, err := sb.getInputType(f.Type)
		if err != nil {
			return nil, graphql.NewConfigError(t.Name(), f.Name, "%s", err)
		}
		nullable := tag.nullable || (meta != nil && meta.nullable)
		nonNull := tag.nonNull || (meta != nil && meta.nonNull)
		switch {
		case nonNull:
			typ = applyNullability(typ, false)
		case nullable:
			typ = applyNullability(typ, true)
		}

		fields[name] = &graphql.InputField{
			Name:        name,
			Description: firstNonEmpty(metaDescription(meta), tag.description),
			Type:        typ,
		}
	}
	return fields, nil
}

// jsonName is the name of a struct field in decoded input.
func jsonName(f reflect.StructField) (string, bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name, true
	}
	return normalizeField(f.Name), true
}

// argsFromStruct declares the fields of an args struct as arguments.
func (sb *schemaBuilder) argsFromStruct(t reflect.Type) ([]*graphql.Argument, error) {
	fields, err := sb.inputFields(t)
	if err != nil {
		return nil, err
	}
	args := make([]*graphql.Argument, 0, len(fields))
	for _, field := range fields {
		args = append(args, &graphql.Argument{
			Name:        field.Name,
			Description: field.Description,
			Type:        field.Type,
		})
	}
	sort.Slice(args, func(i, j int) bool {
		return args[i].Name < args[j].Name
	})
	return args, nil
}

// buildArgs declares arguments from member metadata or Arg options.
func (sb *schemaBuilder) buildArgs(descs []*ArgumentDescriptor) ([]*graphql.Argument, error) {
	args := make([]*graphql.Argument, 0, len(descs))
	seen := make(map[string]bool, len(descs))
	for _, desc := range descs {
		if !validName.MatchString(desc.Name) {
			return nil, graphql.NewConfigError(desc.Name, "", "invalid argument name")
		}
		if seen[desc.Name] {
			return nil, graphql.NewConfigError(desc.Name, "", "duplicate argument")
		}
		seen[desc.Name] = true

		typ, err := sb.getInputType(desc.Type)
		if err != nil {
			return nil, err
		}
		args = append(args, &graphql.Argument{
			Name:         desc.Name,
			Description:  desc.Description,
			Type:         applyNullability(typ, desc.Nullable),
			DefaultValue: desc.DefaultValue,
		})
	}
	return args, nil
}

// decodeArgs decodes the argument map into a new value of an args struct (or
// pointer to one).
func (sb *schemaBuilder) decodeArgs(args map[string]interface{}, typ reflect.Type) (reflect.Value, error) {
	target := reflect.New(deref(typ))
	if err := sb.decoder.Decode(args, target.Interface()); err != nil {
		return reflect.Value{}, graphql.WrapAsSafeError(err, "invalid arguments: %s", err)
	}
	if typ.Kind() == reflect.Ptr {
		return target, nil
	}
	return target.Elem(), nil
}

// coerceArgValues converts declared arguments to their Go types. Other
// entries are passed through.
func (sb *schemaBuilder) coerceArgValues(descs []*ArgumentDescriptor, args map[string]interface{}) (map[string]interface{}, error) {
	coerced := make(map[string]interface{}, len(args))
	for name, value := range args {
		coerced[name] = value
	}
	for _, desc := range descs {
		value, ok := args[desc.Name]
		if !ok || value == nil {
			continue
		}
		if reflect.TypeOf(value).AssignableTo(desc.Type) {
			continue
		}
		raw, err := jsonAPI.Marshal(value)
		if err != nil {
			return nil, oops.Wrapf(err, "encoding argument %s", desc.Name)
		}
		target := reflect.New(desc.Type)
		if err := jsonAPI.Unmarshal(raw, target.Interface()); err != nil {
			return nil, graphql.WrapAsSafeError(err, "invalid argument %s: %s", desc.Name, err)
		}
		coerced[desc.Name] = target.Elem().Interface()
	}
	return coerced, nil
}

// coerceArgs wraps resolve so that it sees declared arguments as Go values.
func (sb *schemaBuilder) coerceArgs(descs []*ArgumentDescriptor, resolve graphql.Resolver) graphql.Resolver {
	return func(ctx context.Context, source interface{}, args map[string]interface{}) (interface{}, error) {
		coerced, err := sb.coerceArgValues(descs, args)
		if err != nil {
			return nil, err
		}
		return resolve(ctx, source, coerced)
	}
}
