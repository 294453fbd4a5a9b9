package schemabuilder

import (
	"context"
	"fmt"
	"reflect"

	"github.com/tinnou/glitr/graphql"
	"github.com/tinnou/glitr/internal"
)

// directResolver reads a member of the parent value: a struct field by index
// path, or an accessor method.
func directResolver(fd *FieldDescriptor) graphql.Resolver {
	if fd.Method != "" {
		method, hasError := fd.Method, fd.HasError
		return func(ctx context.Context, source interface{}, args map[string]interface{}) (interface{}, error) {
			return callAccessor(source, method, hasError)
		}
	}

	index := fd.Index
	return func(ctx context.Context, source interface{}, args map[string]interface{}) (interface{}, error) {
		v := internal.Indirect(reflect.ValueOf(source))
		if !v.IsValid() {
			return nil, nil
		}
		field := internal.FieldByIndex(v, index)
		if !field.IsValid() {
			return nil, nil
		}
		return field.Interface(), nil
	}
}

func callAccessor(source interface{}, name string, hasError bool) (interface{}, error) {
	if internal.IsNil(source) {
		return nil, nil
	}
	v := reflect.ValueOf(source)
	m := v.MethodByName(name)
	if !m.IsValid() && v.Kind() != reflect.Ptr {
		// Pointer receivers need an addressable copy.
		ptr := reflect.New(v.Type())
		ptr.Elem().Set(v)
		m = ptr.MethodByName(name)
	}
	if !m.IsValid() {
		return nil, fmt.Errorf("%T has no method %s", source, name)
	}

	out := m.Call(nil)
	if hasError && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	return out[0].Interface(), nil
}

// Chain composes resolvers: first computes a value from the field's source,
// and each step receives the previous step's result as its source. A nil
// result short-circuits the chain to nil.
func Chain(first graphql.Resolver, steps ...graphql.Resolver) graphql.Resolver {
	if len(steps) == 0 {
		return first
	}
	return func(ctx context.Context, source interface{}, args map[string]interface{}) (interface{}, error) {
		value, err := first(ctx, source, args)
		for _, step := range steps {
			if err != nil {
				return nil, err
			}
			if internal.IsNil(value) {
				return nil, nil
			}
			value, err = step(ctx, value, args)
		}
		if err != nil {
			return nil, err
		}
		return value, nil
	}
}

// buildSteps turns Then functions into resolvers, checking that each accepts
// the previous result. It returns the Go type of the last result.
func (sb *schemaBuilder) buildSteps(in reflect.Type, fns []interface{}) ([]graphql.Resolver, reflect.Type, error) {
	steps := make([]graphql.Resolver, 0, len(fns))
	for i, fn := range fns {
		step, out, err := buildStep(in, fn)
		if err != nil {
			return nil, nil, fmt.Errorf("step %d: %w", i, err)
		}
		steps = append(steps, step)
		in = out
	}
	return steps, in, nil
}

// buildStep parses func([ctx], value V[, args map[string]interface{}]) (R[, error]).
func buildStep(in reflect.Type, fn interface{}) (graphql.Resolver, reflect.Type, error) {
	fun := reflect.ValueOf(fn)
	if fun.Kind() != reflect.Func {
		return nil, nil, fmt.Errorf("step must be func, not %T", fn)
	}
	funcType := fun.Type()

	params := make([]reflect.Type, 0, funcType.NumIn())
	for i := 0; i < funcType.NumIn(); i++ {
		params = append(params, funcType.In(i))
	}
	hasContext := len(params) > 0 && params[0] == contextType
	if hasContext {
		params = params[1:]
	}
	if len(params) == 0 {
		return nil, nil, fmt.Errorf("%s should take the previous value", funcType)
	}
	valueType := params[0]
	params = params[1:]
	if !in.AssignableTo(valueType) && deref(in) != deref(valueType) {
		return nil, nil, fmt.Errorf("%s cannot take a %s", funcType, in)
	}
	hasArgs := len(params) > 0 && params[0] == argsMapType
	if hasArgs {
		params = params[1:]
	}
	if len(params) != 0 {
		return nil, nil, fmt.Errorf("%s arguments should be [context,] value[, args map]", funcType)
	}

	hasError := false
	switch {
	case funcType.NumOut() == 1 && funcType.Out(0) != errType:
	case funcType.NumOut() == 2 && funcType.Out(0) != errType && funcType.Out(1) == errType:
		hasError = true
	default:
		return nil, nil, fmt.Errorf("%s return values should be result[, error]", funcType)
	}

	step := func(ctx context.Context, source interface{}, args map[string]interface{}) (interface{}, error) {
		in := make([]reflect.Value, 0, funcType.NumIn())
		if hasContext {
			in = append(in, reflect.ValueOf(ctx))
		}
		in = append(in, adaptValue(reflect.ValueOf(source), valueType))
		if hasArgs {
			in = append(in, reflect.ValueOf(args))
		}

		out := fun.Call(in)
		if hasError && !out[1].IsNil() {
			return nil, out[1].Interface().(error)
		}
		return out[0].Interface(), nil
	}
	return step, funcType.Out(0), nil
}

// adaptValue converts between T and *T to match the parameter type want.
func adaptValue(v reflect.Value, want reflect.Type) reflect.Value {
	switch {
	case v.Type().AssignableTo(want):
		return v
	case v.Kind() == reflect.Ptr && v.Type().Elem() == want:
		return v.Elem()
	case want.Kind() == reflect.Ptr && want.Elem() == v.Type():
		copyPtr := reflect.New(v.Type())
		copyPtr.Elem().Set(v)
		return copyPtr
	}
	return v
}
