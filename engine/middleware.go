package engine

import (
	"context"

	gql "github.com/graphql-go/graphql"
)

type ComputationInput struct {
	Query     string
	Variables map[string]interface{}
	Ctx       context.Context
}

type ComputationOutput struct {
	// Metadata is copied into the result's extensions.
	Metadata map[string]interface{}
	Result   *gql.Result
}

// A MiddlewareFunc runs around an execution. It calls next to continue the
// chain; the execution itself is the last link, so output.Result is set once
// next returns.
type MiddlewareFunc func(input *ComputationInput, output *ComputationOutput, next NextFunc)
type NextFunc func(input *ComputationInput, output *ComputationOutput)

func _runMiddlewares(index int, middlewares []MiddlewareFunc, input *ComputationInput, output *ComputationOutput) {
	if index >= len(middlewares) {
		return
	}

	middleware := middlewares[index]
	middleware(input, output, func(input *ComputationInput, output *ComputationOutput) {
		_runMiddlewares(index+1, middlewares, input, output)
	})
}

func runMiddlewares(middlewares []MiddlewareFunc, input *ComputationInput, output *ComputationOutput) {
	_runMiddlewares(0, middlewares, input, output)
}
