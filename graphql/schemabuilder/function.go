package schemabuilder

import (
	"context"
	"fmt"
	"reflect"

	"github.com/tinnou/glitr/graphql"
)

var (
	errType     = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	argsMapType = reflect.TypeOf(map[string]interface{}(nil))
)

// buildFunction builds the field of a FieldFunc.
func (sb *schemaBuilder) buildFunction(typ reflect.Type, name string, m *method) (*graphql.Field, error) {
	funcCtx := &funcContext{typ: typ}

	if typ.Kind() == reflect.Ptr {
		return nil, fmt.Errorf("source-type of buildFunction cannot be a pointer (got: %v)", typ)
	}

	fun, err := funcCtx.getFuncVal(m)
	if err != nil {
		return nil, err
	}

	in := funcCtx.getFuncInputTypes()
	in = funcCtx.consumeContextAndSource(in)

	args, in, err := funcCtx.consumeArgs(sb, in, m.config)
	if err != nil {
		return nil, err
	}

	// We have succeeded if no arguments remain.
	if len(in) != 0 {
		return nil, fmt.Errorf("%s arguments should be [context][, [*]%s][, args]", funcCtx.funcType, typ)
	}

	// Parse return values. The first return value must be the actual value, and
	// the second value can optionally be an error.
	if err := funcCtx.parseReturnSignature(m); err != nil {
		return nil, err
	}

	resolve := func(ctx context.Context, source interface{}, args map[string]interface{}) (interface{}, error) {
		// Set up function arguments.
		in, err := funcCtx.prepareResolveArgs(sb, ctx, source, args)
		if err != nil {
			return nil, err
		}
		// Call the function.
		out := fun.Call(in)

		return funcCtx.extractResultAndErr(out)
	}

	resultType := reflect.TypeOf(true)
	if funcCtx.hasRet {
		resultType = funcCtx.funcType.Out(0)
	}
	retType, resolver, connArgs, err := sb.shape(sb.typeName(typ), name, resultType, resolve, m.config.connection, m.config.then)
	if err != nil {
		return nil, err
	}

	return &graphql.Field{
		Resolve: resolver,
		Args:    append(connArgs, args...),
		Type:    functionNullability(retType, name, m.config),
	}, nil
}

// funcContext is used to parse the function signature in buildFunction.
type funcContext struct {
	hasContext bool
	hasSource  bool
	hasRet     bool
	hasError   bool

	// argsType is the args struct, if any; argsMap is set for a
	// map[string]interface{} args parameter.
	argsType reflect.Type
	argsMap  []*ArgumentDescriptor

	funcType  reflect.Type
	isPtrFunc bool
	typ       reflect.Type
}

func (funcCtx *funcContext) getFuncVal(m *method) (reflect.Value, error) {
	fun := reflect.ValueOf(m.Fn)
	if fun.Kind() != reflect.Func {
		return fun, fmt.Errorf("fun must be func, not %s", fun)
	}
	funcCtx.funcType = fun.Type()
	return fun, nil
}

func (funcCtx *funcContext) getFuncInputTypes() []reflect.Type {
	in := make([]reflect.Type, 0, funcCtx.funcType.NumIn())
	for i := 0; i < funcCtx.funcType.NumIn(); i++ {
		in = append(in, funcCtx.funcType.In(i))
	}
	return in
}

func (funcCtx *funcContext) consumeContextAndSource(in []reflect.Type) []reflect.Type {
	ptr := reflect.PtrTo(funcCtx.typ)

	if len(in) > 0 && in[0] == contextType {
		funcCtx.hasContext = true
		in = in[1:]
	}

	if len(in) > 0 && (in[0] == funcCtx.typ || in[0] == ptr) {
		funcCtx.hasSource = true
		funcCtx.isPtrFunc = in[0] == ptr
		in = in[1:]
	}

	return in
}

// consumeArgs reads the args parameter, if any. A struct declares the
// arguments through its fields; a map[string]interface{} receives the
// arguments declared with Arg options.
func (funcCtx *funcContext) consumeArgs(sb *schemaBuilder, in []reflect.Type, cfg *fieldConfig) ([]*graphql.Argument, []reflect.Type, error) {
	if len(in) == 0 {
		if len(cfg.args) > 0 {
			return nil, in, fmt.Errorf("%s declares arguments but takes no args parameter", funcCtx.funcType)
		}
		return nil, in, nil
	}

	if in[0] == argsMapType {
		args, err := sb.buildArgs(cfg.args)
		if err != nil {
			return nil, in, err
		}
		funcCtx.argsMap = cfg.args
		if funcCtx.argsMap == nil {
			funcCtx.argsMap = []*ArgumentDescriptor{}
		}
		return args, in[1:], nil
	}

	if deref(in[0]).Kind() != reflect.Struct {
		return nil, in, nil
	}
	if len(cfg.args) > 0 {
		return nil, in, fmt.Errorf("%s: Arg options need a map[string]interface{} args parameter", funcCtx.funcType)
	}
	args, err := sb.argsFromStruct(deref(in[0]))
	if err != nil {
		return nil, in, fmt.Errorf("attempted to parse %s as arguments struct, but failed: %w", in[0], err)
	}
	funcCtx.argsType = in[0]
	return args, in[1:], nil
}

func (funcCtx *funcContext) parseReturnSignature(m *method) (err error) {
	out := make([]reflect.Type, 0, funcCtx.funcType.NumOut())
	for i := 0; i < funcCtx.funcType.NumOut(); i++ {
		out = append(out, funcCtx.funcType.Out(i))
	}

	if len(out) > 0 && out[0] != errType {
		funcCtx.hasRet = true
		out = out[1:]
	}

	if len(out) > 0 && out[0] == errType {
		funcCtx.hasError = true
		out = out[1:]
	}

	if len(out) != 0 {
		return fmt.Errorf("%s return values should [result][, error]", funcCtx.funcType)
	}
	if !funcCtx.hasRet && (m.config.connection || len(m.config.then) > 0) {
		return fmt.Errorf("%s has no return value to paginate or chain", funcCtx.funcType)
	}
	return nil
}

func (funcCtx *funcContext) prepareResolveArgs(sb *schemaBuilder, ctx context.Context, source interface{}, args map[string]interface{}) ([]reflect.Value, error) {
	in := make([]reflect.Value, 0, funcCtx.funcType.NumIn())
	if funcCtx.hasContext {
		in = append(in, reflect.ValueOf(ctx))
	}

	// Set up source.
	if funcCtx.hasSource {
		want := funcCtx.typ
		if funcCtx.isPtrFunc {
			want = reflect.PtrTo(funcCtx.typ)
		}
		in = append(in, adaptValue(reflect.ValueOf(source), want))
	}

	// Set up other arguments.
	switch {
	case funcCtx.argsType != nil:
		value, err := sb.decodeArgs(args, funcCtx.argsType)
		if err != nil {
			return nil, err
		}
		in = append(in, value)
	case funcCtx.argsMap != nil:
		coerced, err := sb.coerceArgValues(funcCtx.argsMap, args)
		if err != nil {
			return nil, err
		}
		in = append(in, reflect.ValueOf(coerced))
	}
	return in, nil
}

func (funcCtx *funcContext) extractResultAndErr(out []reflect.Value) (interface{}, error) {
	var result interface{}
	if funcCtx.hasRet {
		result = out[0].Interface()
		out = out[1:]
	} else {
		result = true
	}
	if funcCtx.hasError {
		if err := out[0]; !err.IsNil() {
			return nil, err.Interface().(error)
		}
	}
	return result, nil
}
