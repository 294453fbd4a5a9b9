package schemabuilder

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tinnou/glitr/graphql"
	"github.com/tinnou/glitr/logger"
	"github.com/tinnou/glitr/validation"
)

const tracerName = "github.com/tinnou/glitr/graphql/schemabuilder"

// Mutation outcomes, as counted by glitr_mutations_total.
const (
	OutcomeOK              = "ok"
	OutcomeDecodeError     = "decode_error"
	OutcomeValidationError = "validation_error"
	OutcomeHandlerError    = "handler_error"
)

var relayMutationType = reflect.TypeOf((*RelayMutationType)(nil)).Elem()

// DecodeError is returned when a mutation's input cannot be decoded into the
// handler's input type.
type DecodeError struct {
	Mutation string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: decoding input: %v", e.Mutation, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// SanitizedError hides the decoder's internals from clients.
func (e *DecodeError) SanitizedError() string {
	return fmt.Sprintf("%s: invalid input", e.Mutation)
}

// ValidationError is returned when a mutation's input fails validation. The
// handler is not called.
type ValidationError struct {
	Mutation   string
	Violations []validation.Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("%s: invalid input: %s", e.Mutation, strings.Join(parts, "; "))
}

func (e *ValidationError) SanitizedError() string {
	return e.Error()
}

// A MutationOption configures a Relay mutation.
type MutationOption func(*relayMutation)

// WithValidator validates decoded input before the handler runs.
func WithValidator(v validation.Validator) MutationOption {
	return func(m *relayMutation) {
		m.validator = v
	}
}

// MutationDescription documents the mutation field.
func MutationDescription(description string) MutationOption {
	return func(m *relayMutation) {
		m.description = description
	}
}

type relayMutation struct {
	name        string
	input       reflect.Type
	payload     reflect.Type
	handler     reflect.Value
	validator   validation.Validator
	description string

	// Set when the field is built.
	decoder Decoder
	tracer  trace.Tracer
	logger  logger.Logger
	metrics *mutationMetrics
}

// RelayMutation registers a mutation following the Relay conventions:
//
//     name(input: <Input>Input!): <Payload>
//
// handler has the form func(context.Context, *Input) (*Payload, error), where
// *Payload implements RelayMutationType (eg. by embedding ClientMutationID).
// input is a value of the Input struct. Each call decodes the input argument,
// validates it if a validator is set, calls handler and echoes the client's
// clientMutationId into the payload.
func (s *Schema) RelayMutation(name string, input interface{}, handler interface{}, opts ...MutationOption) {
	inputType := reflect.TypeOf(input)
	if inputType == nil || deref(inputType).Kind() != reflect.Struct {
		s.errorf("Mutation", name, "mutation input should be a struct, not %v", inputType)
		return
	}
	inputType = deref(inputType)

	fun := reflect.ValueOf(handler)
	if fun.Kind() != reflect.Func {
		s.errorf("Mutation", name, "mutation handler should be a func, not %T", handler)
		return
	}
	funcType := fun.Type()
	if funcType.NumIn() != 2 || funcType.In(0) != contextType || funcType.In(1) != reflect.PtrTo(inputType) ||
		funcType.NumOut() != 2 || funcType.Out(1) != errType {
		s.errorf("Mutation", name, "mutation handler should be func(context.Context, *%s) (*Payload, error), not %s", inputType.Name(), funcType)
		return
	}
	payload := funcType.Out(0)
	if payload.Kind() != reflect.Ptr || payload.Elem().Kind() != reflect.Struct {
		s.errorf("Mutation", name, "mutation payload should be a pointer to a struct, not %s", payload)
		return
	}
	if !payload.Implements(relayMutationType) {
		s.errorf("Mutation", name, "mutation payload %s does not implement RelayMutationType", payload)
		return
	}

	for _, m := range s.relayMutations {
		if m.name == name {
			s.errorf("Mutation", name, "duplicate mutation")
			return
		}
	}

	m := &relayMutation{
		name:    name,
		input:   inputType,
		payload: payload,
		handler: fun,
	}
	for _, opt := range opts {
		opt(m)
	}
	s.relayMutations = append(s.relayMutations, m)
}

// buildRelayMutation builds the mutation root field of a Relay mutation.
func (sb *schemaBuilder) buildRelayMutation(m *relayMutation) (*graphql.Field, error) {
	inputType, err := sb.getInputType(m.input)
	if err != nil {
		return nil, err
	}
	if input, ok := graphql.Named(inputType).(*graphql.InputObject); ok {
		if _, ok := input.Fields["clientMutationId"]; !ok {
			input.Fields["clientMutationId"] = &graphql.InputField{
				Name: "clientMutationId",
				Type: sb.scalar("String"),
			}
		}
	}

	payloadType, err := sb.getType(m.payload)
	if err != nil {
		return nil, err
	}

	// Each build gets its own copy so schemas built from the same Schema
	// keep their own decoder, tracer and metrics.
	mc := new(relayMutation)
	*mc = *m
	mc.decoder = sb.decoder
	mc.tracer = sb.tracerProvider.Tracer(tracerName)
	mc.logger = sb.logger
	mc.metrics = sb.metrics

	return &graphql.Field{
		Name:        mc.name,
		Description: mc.description,
		Type:        payloadType,
		Args: []*graphql.Argument{{
			Name: "input",
			Type: &graphql.NonNull{Type: graphql.Named(inputType)},
		}},
		Resolve: mc.resolve,
	}, nil
}

// resolve runs the mutation pipeline: decode, validate, execute, envelope.
func (m *relayMutation) resolve(ctx context.Context, source interface{}, args map[string]interface{}) (interface{}, error) {
	ctx, span := m.tracer.Start(ctx, "mutation "+m.name, trace.WithAttributes(attribute.String("graphql.mutation", m.name)))
	defer span.End()

	raw, _ := args["input"].(map[string]interface{})

	input, err := m.decode(ctx, raw)
	if err != nil {
		return nil, m.fail(span, OutcomeDecodeError, err)
	}
	if err := m.validate(ctx, input); err != nil {
		return nil, m.fail(span, OutcomeValidationError, err)
	}
	payload, err := m.execute(ctx, input)
	if err != nil {
		return nil, m.fail(span, OutcomeHandlerError, err)
	}

	var clientMutationID *string
	if id, ok := raw["clientMutationId"].(string); ok {
		clientMutationID = &id
	}
	payload.SetClientMutationId(clientMutationID)

	m.metrics.observe(m.name, OutcomeOK)
	span.SetAttributes(attribute.String("graphql.mutation.outcome", OutcomeOK))
	return payload, nil
}

func (m *relayMutation) decode(ctx context.Context, raw map[string]interface{}) (reflect.Value, error) {
	_, span := m.tracer.Start(ctx, "decode")
	defer span.End()

	input := reflect.New(m.input)
	if err := m.decoder.Decode(raw, input.Interface()); err != nil {
		span.RecordError(err)
		return reflect.Value{}, &DecodeError{Mutation: m.name, Err: err}
	}
	return input, nil
}

func (m *relayMutation) validate(ctx context.Context, input reflect.Value) error {
	if m.validator == nil {
		return nil
	}
	_, span := m.tracer.Start(ctx, "validate")
	defer span.End()

	violations := m.validator.Validate(input.Interface())
	span.SetAttributes(attribute.Int("graphql.mutation.violations", len(violations)))
	if len(violations) > 0 {
		return &ValidationError{Mutation: m.name, Violations: violations}
	}
	return nil
}

func (m *relayMutation) execute(ctx context.Context, input reflect.Value) (RelayMutationType, error) {
	ctx, span := m.tracer.Start(ctx, "execute")
	defer span.End()

	out := m.handler.Call([]reflect.Value{reflect.ValueOf(ctx), input})
	if err, _ := out[1].Interface().(error); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if out[0].IsNil() {
		return nil, fmt.Errorf("%s returned no payload", m.name)
	}
	return out[0].Interface().(RelayMutationType), nil
}

func (m *relayMutation) fail(span trace.Span, outcome string, err error) error {
	m.metrics.observe(m.name, outcome)
	span.SetAttributes(attribute.String("graphql.mutation.outcome", outcome))
	span.SetStatus(codes.Error, err.Error())
	m.logger.Warn("mutation failed", "mutation", m.name, "outcome", outcome, "error", err)
	return err
}

// mutationMetrics counts mutation outcomes.
type mutationMetrics struct {
	outcomes *prometheus.CounterVec
}

func newMutationMetrics(r prometheus.Registerer, l logger.Logger) *mutationMetrics {
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "glitr_mutations_total",
		Help: "Relay mutations executed, by mutation and outcome.",
	}, []string{"mutation", "outcome"})

	if r != nil {
		if err := r.Register(outcomes); err != nil {
			var already prometheus.AlreadyRegisteredError
			existing, ok := (*prometheus.CounterVec)(nil), false
			if errors.As(err, &already) {
				existing, ok = already.ExistingCollector.(*prometheus.CounterVec)
			}
			if ok {
				outcomes = existing
			} else {
				l.Warn("registering mutation metrics", "error", err)
			}
		}
	}
	return &mutationMetrics{outcomes: outcomes}
}

func (m *mutationMetrics) observe(mutation, outcome string) {
	m.outcomes.WithLabelValues(mutation, outcome).Inc()
}
