package schemabuilder

import (
	"context"
	"fmt"
	"reflect"

	"github.com/samsarahq/go/oops"

	"github.com/tinnou/glitr/batch"
	"github.com/tinnou/glitr/graphql"
)

// buildBatchFunction corresponds to buildFunction for a batchFieldFunc
func (sb *schemaBuilder) buildBatchFunction(typ reflect.Type, name string, m *method) (*graphql.Field, error) {
	funcCtx := &batchFuncContext{parentTyp: typ}

	if typ.Kind() == reflect.Ptr {
		return nil, fmt.Errorf("source-type of buildBatchFunction cannot be a pointer (got: %v)", typ)
	}
	if m.config.connection {
		return nil, fmt.Errorf("batched fields cannot be paginated")
	}

	callableFunc, err := funcCtx.getFuncVal(m)
	if err != nil {
		return nil, err
	}

	in := funcCtx.getFuncInputTypes()
	if len(in) == 0 {
		return nil, fmt.Errorf("batch Field funcs require at least one input field")
	}

	in = funcCtx.consumeContext(in)
	in, err = funcCtx.consumeRequiredSourceBatch(in)
	if err != nil {
		return nil, err
	}
	args, in, err := funcCtx.consumeArgs(sb, in, m.config)
	if err != nil {
		return nil, err
	}

	// We have succeeded if no arguments remain.
	if len(in) != 0 {
		return nil, fmt.Errorf("%s arguments should be [context,]map[int][*]%s[, args]", funcCtx.funcType, typ)
	}

	out := funcCtx.getFuncOutputTypes()
	retType, out, err := funcCtx.consumeReturnValue(sb, out, m.config.then)
	if err != nil {
		return nil, err
	}
	out = funcCtx.consumeReturnError(out)
	if len(out) > 0 {
		return nil, fmt.Errorf("%s return should be [map[int]<Type>][,error]", funcCtx.funcType)
	}

	batchExecFunc := func(ctx context.Context, sources []interface{}, funcRawArgs map[string]interface{}) ([]interface{}, error) {
		// Set up function arguments.
		funcInputArgs, err := funcCtx.prepareResolveArgs(sb, ctx, sources, funcRawArgs)
		if err != nil {
			return nil, err
		}

		// Call the function.
		funcOutputArgs := callableFunc.Call(funcInputArgs)

		results, err := funcCtx.extractResultsAndErr(len(sources), funcOutputArgs)
		if err != nil || funcCtx.then == nil {
			return results, err
		}
		for i, result := range results {
			if results[i], err = funcCtx.then(ctx, result, funcRawArgs); err != nil {
				return nil, err
			}
		}
		return results, nil
	}

	batchFunc := &batch.Func{
		Many: func(ctx context.Context, args []interface{}) ([]interface{}, error) {
			if len(args) == 0 {
				return nil, nil
			}
			funcRawArgs := args[0].(batchTypeHolder).funcRawArgs

			sources := make([]interface{}, 0, len(args))
			for _, arg := range args {
				sources = append(sources, arg.(batchTypeHolder).source)
			}

			return batchExecFunc(ctx, sources, funcRawArgs)
		},
		// Sources with different arguments are never batched together.
		Shard: func(arg interface{}) interface{} {
			return arg.(batchTypeHolder).shard
		},
		MaxSize: sb.batchMaxSize,
	}

	holder := func(source interface{}, funcRawArgs map[string]interface{}) (batchTypeHolder, error) {
		shard, err := jsonAPI.MarshalToString(funcRawArgs)
		if err != nil {
			return batchTypeHolder{}, oops.Wrapf(err, "encoding arguments of %s", name)
		}
		return batchTypeHolder{source: source, funcRawArgs: funcRawArgs, shard: shard}, nil
	}

	return &graphql.Field{
		Resolve: func(ctx context.Context, source interface{}, funcRawArgs map[string]interface{}) (interface{}, error) {
			if !batch.HasBatching(ctx) {
				results, err := batchExecFunc(ctx, []interface{}{source}, funcRawArgs)
				if err != nil {
					return nil, err
				}
				return results[0], nil
			}
			h, err := holder(source, funcRawArgs)
			if err != nil {
				return nil, err
			}
			return batchFunc.Invoke(ctx, h)
		},
		BatchResolve: batchExecFunc,
		Defer: func(ctx context.Context, source interface{}, funcRawArgs map[string]interface{}) func() (interface{}, error) {
			h, err := holder(source, funcRawArgs)
			if err != nil {
				return func() (interface{}, error) { return nil, err }
			}
			return batchFunc.Defer(ctx, h)
		},
		Args: args,
		Type: functionNullability(retType, name, m.config),
	}, nil
}

type batchTypeHolder struct {
	source      interface{}
	funcRawArgs map[string]interface{}
	shard       string
}

// batchFuncContext is used to parse the function signature in
// buildBatchFunction.
type batchFuncContext struct {
	funcContext

	batchMapType reflect.Type
	parentTyp    reflect.Type

	// then post-processes each element of the batch result. Nil elements
	// stay nil.
	then graphql.Resolver
}

// consumeContext reads in the input parameters for the provided
// function and determines whether the function has a Context input parameter.
// It returns the input types without the context parameter if it was there.
func (funcCtx *batchFuncContext) consumeContext(in []reflect.Type) []reflect.Type {
	if len(in) > 0 && in[0] == contextType {
		funcCtx.hasContext = true
		in = in[1:]
	}
	return in
}

// consumeRequiredSourceBatch reads in the input parameters for the provided
// function and guarantees that the input parameters include a batch of the
// parent type (map[int]*ParentObject).  If we don't have the batch we return an
// error because the function is invalid.
func (funcCtx *batchFuncContext) consumeRequiredSourceBatch(in []reflect.Type) ([]reflect.Type, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("requires batch source input parameter for func")
	}
	inType := in[0]
	in = in[1:]

	parentPtrType := reflect.PtrTo(funcCtx.parentTyp)
	if inType.Kind() != reflect.Map ||
		inType.Key().Kind() != reflect.Int ||
		(inType.Elem() != parentPtrType && inType.Elem() != funcCtx.parentTyp) {
		return nil, fmt.Errorf(
			"invalid source batch type, expected one of map[int]*%s or map[int]%s, but got %s",
			funcCtx.parentTyp.String(),
			funcCtx.parentTyp.String(),
			inType.String(),
		)
	}

	funcCtx.isPtrFunc = inType.Elem() == parentPtrType
	funcCtx.batchMapType = inType

	return in, nil
}

func (funcCtx *batchFuncContext) getFuncOutputTypes() []reflect.Type {
	out := make([]reflect.Type, 0, funcCtx.funcType.NumOut())
	for i := 0; i < funcCtx.funcType.NumOut(); i++ {
		out = append(out, funcCtx.funcType.Out(i))
	}
	return out
}

// consumeReturnValue consumes the function output's response value if it exists
// and validates that the response is a proper batch type. Composite steps in
// then run on each element, and the field takes the type of the last step.
func (funcCtx *batchFuncContext) consumeReturnValue(sb *schemaBuilder, out []reflect.Type, then []interface{}) (graphql.Type, []reflect.Type, error) {
	if len(out) == 0 || out[0] == errType {
		if len(then) > 0 {
			return nil, nil, fmt.Errorf("%s has no return value to chain", funcCtx.funcType)
		}
		retType, err := sb.getType(reflect.TypeOf(true))
		if err != nil {
			return nil, nil, err
		}
		return retType, out, nil
	}
	outType := out[0]
	out = out[1:]
	if outType.Kind() != reflect.Map ||
		outType.Key().Kind() != reflect.Int {
		return nil, nil, fmt.Errorf(
			"invalid response batch type, expected map[int]<Type>, but got %s",
			outType.String(),
		)
	}
	elemType := outType.Elem()
	if len(then) > 0 {
		steps, last, err := sb.buildSteps(elemType, then)
		if err != nil {
			return nil, nil, err
		}
		element := func(ctx context.Context, source interface{}, args map[string]interface{}) (interface{}, error) {
			return source, nil
		}
		funcCtx.then = sb.unwrapUnions(last, Chain(sb.unwrapUnions(elemType, element), steps...))
		elemType = last
	}
	retType, err := sb.getType(elemType)
	if err != nil {
		return nil, nil, err
	}
	funcCtx.hasRet = true
	return retType, out, nil
}

// consumeReturnError consumes the function output's error type if it exists.
func (funcCtx *batchFuncContext) consumeReturnError(out []reflect.Type) []reflect.Type {
	if len(out) > 0 && out[0] == errType {
		funcCtx.hasError = true
		out = out[1:]
	}
	return out
}

// prepareResolveArgs converts the provided sources, args and context into the
// required list of reflect.Value types that the function needs to be called.
func (funcCtx *batchFuncContext) prepareResolveArgs(sb *schemaBuilder, ctx context.Context, sources []interface{}, args map[string]interface{}) ([]reflect.Value, error) {
	in := make([]reflect.Value, 0, funcCtx.funcType.NumIn())
	if funcCtx.hasContext {
		in = append(in, reflect.ValueOf(ctx))
	}

	batch := reflect.MakeMapWithSize(funcCtx.batchMapType, len(sources))
	for idx, source := range sources {
		batch.SetMapIndex(reflect.ValueOf(idx), adaptValue(reflect.ValueOf(source), funcCtx.batchMapType.Elem()))
	}
	in = append(in, batch)

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

// extractResultsAndErr converts the response from calling the function into
// the expected type for the response object (as opposed to a reflect.Value).
// It also handles reading whether the function ended with errors.
func (funcCtx *batchFuncContext) extractResultsAndErr(numResps int, out []reflect.Value) ([]interface{}, error) {
	if funcCtx.hasError {
		if err := out[len(out)-1]; !err.IsNil() {
			return nil, err.Interface().(error)
		}
	}
	if !funcCtx.hasRet {
		res := make([]interface{}, numResps)
		for i := 0; i < numResps; i++ {
			res[i] = true
		}
		return res, nil
	}
	resBatch := out[0]

	res := make([]interface{}, numResps)
	for _, mapKey := range resBatch.MapKeys() {
		idx := int(mapKey.Int())
		if idx < 0 || idx >= numResps {
			return nil, fmt.Errorf("%s returned a result for unknown source %d", funcCtx.funcType, idx)
		}
		res[idx] = resBatch.MapIndex(mapKey).Interface()
	}
	return res, nil
}
