package graphql_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tinnou/glitr/graphql"
)

type Wrapper interface {
	Unwrap() error
}

func TestNewSafeError(t *testing.T) {
	err := graphql.NewSafeError("This is an error.")
	wrapperError, ok := err.(Wrapper)
	assert.True(t, ok)
	assert.Nil(t, wrapperError.Unwrap())
}

func TestWrapAsSafeError(t *testing.T) {
	sourceErr := errors.New("I am the source error.")
	err := graphql.WrapAsSafeError(sourceErr, "This is an error.")
	wrapperError, ok := err.(Wrapper)
	assert.True(t, ok)
	assert.Equal(t, sourceErr, wrapperError.Unwrap())
	assert.True(t, errors.Is(err, sourceErr))
}

func TestSanitizeError(t *testing.T) {
	assert.Equal(t, "bad input", graphql.SanitizeError(graphql.NewClientError("bad %s", "input")))
	assert.Equal(t, "Internal server error", graphql.SanitizeError(errors.New("secret")))
}

func TestConfigErrorMessage(t *testing.T) {
	err := graphql.NewConfigError("Book", "title", "duplicate field %s", "title")
	assert.Equal(t, "Book.title: duplicate field title", err.Error())

	err = graphql.NewConfigError("Book", "", "bad type")
	assert.Equal(t, "Book: bad type", err.Error())
}
