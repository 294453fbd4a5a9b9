// Package engine executes queries against a schema built by schemabuilder,
// using github.com/graphql-go/graphql to parse, validate and walk them.
//
// Every request runs with batching enabled: batched fields are resolved
// through thunks, and all sources deferred while graphql-go walks one level of
// the response are handed to a single call of the batch function.
package engine

import (
	"context"

	gql "github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/samsarahq/go/oops"
	"golang.org/x/sync/semaphore"

	"github.com/tinnou/glitr/batch"
	"github.com/tinnou/glitr/graphql"
	"github.com/tinnou/glitr/logger"
)

// Engine runs queries. It is safe for concurrent use.
type Engine struct {
	schema      gql.Schema
	logger      logger.Logger
	sanitize    bool
	middlewares []MiddlewareFunc
	limiter     *semaphore.Weighted
}

// An Option configures an Engine.
type Option func(*Engine)

// WithLogger sets where internal errors are logged.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithSanitizedErrors replaces the message of every error that is not a
// graphql.SanitizedError with "Internal server error". The original error is
// logged.
func WithSanitizedErrors() Option {
	return func(e *Engine) {
		e.sanitize = true
	}
}

// WithMiddlewares wraps every execution in middlewares, outermost first.
func WithMiddlewares(middlewares ...MiddlewareFunc) Option {
	return func(e *Engine) {
		e.middlewares = append(e.middlewares, middlewares...)
	}
}

// New converts schema for execution.
func New(schema *graphql.Schema, opts ...Option) (*Engine, error) {
	if schema == nil {
		return nil, oops.Errorf("engine requires a schema")
	}
	converted, err := newConverter(schema).convert()
	if err != nil {
		return nil, oops.Wrapf(err, "converting schema")
	}

	e := &Engine{
		schema: converted,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Schema returns the converted graphql-go schema.
func (e *Engine) Schema() gql.Schema {
	return e.schema
}

// Execute runs query with variables. Errors of individual fields are reported
// in the result next to the data that could be computed.
func (e *Engine) Execute(ctx context.Context, query string, variables map[string]interface{}) *gql.Result {
	middlewares := make([]MiddlewareFunc, 0, len(e.middlewares)+1)
	middlewares = append(middlewares, e.middlewares...)
	middlewares = append(middlewares, func(input *ComputationInput, output *ComputationOutput, next NextFunc) {
		output.Result = e.execute(input.Ctx, input.Query, input.Variables)
		next(input, output)
	})

	input := &ComputationInput{
		Query:     query,
		Variables: variables,
		Ctx:       ctx,
	}
	output := &ComputationOutput{
		Metadata: make(map[string]interface{}),
	}
	runMiddlewares(middlewares, input, output)

	if output.Result == nil {
		output.Result = &gql.Result{Errors: gqlerrors.FormatErrors(oops.Errorf("query was not executed"))}
	}
	if len(output.Metadata) > 0 {
		if output.Result.Extensions == nil {
			output.Result.Extensions = make(map[string]interface{}, len(output.Metadata))
		}
		for k, v := range output.Metadata {
			output.Result.Extensions[k] = v
		}
	}
	return output.Result
}

func (e *Engine) execute(ctx context.Context, query string, variables map[string]interface{}) *gql.Result {
	if e.limiter != nil {
		if err := e.limiter.Acquire(ctx, 1); err != nil {
			return &gql.Result{Errors: gqlerrors.FormatErrors(oops.Wrapf(err, "waiting to execute"))}
		}
		defer e.limiter.Release(1)
	}
	if !batch.HasBatching(ctx) {
		ctx = batch.WithBatching(ctx)
	}
	result := gql.Do(gql.Params{
		Schema:         e.schema,
		RequestString:  query,
		VariableValues: variables,
		Context:        ctx,
	})
	if e.sanitize {
		e.sanitizeErrors(result)
	}
	return result
}

func (e *Engine) sanitizeErrors(result *gql.Result) {
	for i, formatted := range result.Errors {
		err := originalError(formatted)
		if err == nil {
			// Parse and validation errors are about the query itself.
			continue
		}
		if sanitized, ok := err.(graphql.SanitizedError); ok {
			result.Errors[i].Message = sanitized.SanitizedError()
			continue
		}
		e.logger.Error("graphql field error", "path", formatted.Path, "error", err)
		result.Errors[i].Message = graphql.SanitizeError(err)
	}
}

// originalError digs the resolver's error out of graphql-go's wrappers. It
// returns nil for errors raised by graphql-go itself.
func originalError(formatted gqlerrors.FormattedError) error {
	located, ok := formatted.OriginalError().(*gqlerrors.Error)
	if !ok {
		return nil
	}
	var err error = located
	for {
		switch inner := err.(type) {
		case *gqlerrors.Error:
			if inner.OriginalError == nil {
				if inner == located {
					return nil
				}
				return inner
			}
			err = inner.OriginalError
		case gqlerrors.FormattedError:
			if inner.OriginalError() == nil {
				return inner
			}
			err = inner.OriginalError()
		default:
			return err
		}
	}
}
