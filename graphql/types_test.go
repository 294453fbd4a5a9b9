package graphql_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/tinnou/glitr/graphql"
)

type genre int

const (
	fiction genre = iota
	nonFiction
)

func librarySchema() *graphql.Schema {
	str := &graphql.Scalar{Type: "String"}
	genreEnum := &graphql.Enum{
		Type:        "Genre",
		Description: "Kinds of books",
		Values: []*graphql.EnumValue{
			{Name: "NON_FICTION", Value: nonFiction},
			{Name: "FICTION", Value: fiction, Description: "Made up"},
		},
		ReverseMap: map[interface{}]string{nonFiction: "NON_FICTION", fiction: "FICTION"},
	}
	book := &graphql.Object{
		Name:        "Book",
		Description: "A published book",
		Fields: map[string]*graphql.Field{
			"title": {Name: "title", Type: &graphql.NonNull{Type: str}},
			"genre": {Name: "genre", Type: genreEnum},
		},
	}
	person := &graphql.Object{
		Name: "Person",
		Fields: map[string]*graphql.Field{
			"name": {Name: "name", Type: &graphql.NonNull{Type: str}},
		},
	}
	named := &graphql.Interface{
		Name: "Named",
		Fields: map[string]*graphql.Field{
			"name": {Name: "name", Type: &graphql.NonNull{Type: str}},
		},
		PossibleTypes: map[string]*graphql.Object{"Person": person},
		ResolveType: func(value interface{}) (string, error) {
			return "Person", nil
		},
	}
	person.Interfaces = []*graphql.Interface{named}
	hit := &graphql.Union{
		Name:  "Hit",
		Types: map[string]*graphql.Object{"Person": person, "Book": book},
		ResolveType: func(value interface{}) (string, error) {
			return "Book", nil
		},
	}
	filter := &graphql.InputObject{
		Name: "BookFilter",
		Fields: map[string]*graphql.InputField{
			"genre": {Name: "genre", Type: genreEnum, DefaultValue: fiction},
			"limit": {Name: "limit", Type: &graphql.Scalar{Type: "Int"}, DefaultValue: int64(10)},
		},
	}
	query := &graphql.Object{
		Name: "Query",
		Fields: map[string]*graphql.Field{
			"books": {
				Name: "books",
				Type: &graphql.NonNull{Type: &graphql.List{Type: &graphql.NonNull{Type: book}}},
				Args: []*graphql.Argument{
					{Name: "genre", Type: genreEnum, DefaultValue: nonFiction, Description: "Only books of this genre"},
					{Name: "filter", Type: filter},
				},
			},
			"search": {Name: "search", Type: &graphql.List{Type: hit}},
			"named":  {Name: "named", Type: named},
		},
	}

	return &graphql.Schema{
		Query: query,
		Types: map[string]graphql.Type{
			"Query":      query,
			"Book":       book,
			"Person":     person,
			"Named":      named,
			"Hit":        hit,
			"Genre":      genreEnum,
			"BookFilter": filter,
			"String":     str,
		},
	}
}

func TestTypeStrings(t *testing.T) {
	book := &graphql.Object{Name: "Book"}
	typ := &graphql.NonNull{Type: &graphql.List{Type: &graphql.NonNull{Type: book}}}

	assert.Equal(t, "[Book!]!", typ.String())
	assert.Same(t, book, graphql.Named(typ))
	assert.Equal(t, "Book", (&graphql.Reference{Name: "Book"}).String())
}

func TestTypeNamesAreSorted(t *testing.T) {
	s := librarySchema()
	assert.Equal(t, []string{"Book", "BookFilter", "Genre", "Hit", "Named", "Person", "Query", "String"}, s.TypeNames())
	assert.Equal(t, []string{"books", "named", "search"}, s.Query.FieldNames())
}

func TestSchemaResolveType(t *testing.T) {
	s := librarySchema()

	name, err := s.ResolveType("Named", struct{}{})
	require.NoError(t, err)
	assert.Equal(t, "Person", name)

	name, err = s.ResolveType("Hit", struct{}{})
	require.NoError(t, err)
	assert.Equal(t, "Book", name)

	_, err = s.ResolveType("Book", struct{}{})
	assert.EqualError(t, err, "Book is not an interface or union")
}

func TestResolutionErrorMessage(t *testing.T) {
	err := &graphql.ResolutionError{Abstract: "Shape", GoType: "main.Triangle", Reason: "type is not registered"}
	assert.Equal(t, "cannot resolve concrete type of Shape for value of type main.Triangle: type is not registered", err.Error())
}

func TestSDL(t *testing.T) {
	s := librarySchema()
	sdl := s.SDL()

	// Printing is deterministic.
	assert.Equal(t, sdl, librarySchema().SDL())

	parsed, err := gqlparser.LoadSchema(&ast.Source{Name: "library.graphql", Input: sdl})
	require.NoError(t, err, sdl)

	require.NotNil(t, parsed.Query)
	assert.Equal(t, "Query", parsed.Query.Name)
	assert.Nil(t, parsed.Mutation)

	book := parsed.Types["Book"]
	require.NotNil(t, book)
	assert.Equal(t, "A published book", book.Description)
	assert.Equal(t, "String!", book.Fields.ForName("title").Type.String())
	assert.Equal(t, "Genre", book.Fields.ForName("genre").Type.String())

	genre := parsed.Types["Genre"]
	require.NotNil(t, genre)
	require.Len(t, genre.EnumValues, 2)
	assert.Equal(t, "NON_FICTION", genre.EnumValues[0].Name)
	assert.Equal(t, "FICTION", genre.EnumValues[1].Name)
	assert.Equal(t, "Made up", genre.EnumValues[1].Description)

	books := parsed.Query.Fields.ForName("books")
	assert.Equal(t, "[Book!]!", books.Type.String())
	require.Len(t, books.Arguments, 2)
	assert.Equal(t, "genre", books.Arguments[0].Name)
	assert.Equal(t, "NON_FICTION", books.Arguments[0].DefaultValue.Raw)
	assert.Equal(t, "Only books of this genre", books.Arguments[0].Description)
	assert.Equal(t, "filter", books.Arguments[1].Name)

	filter := parsed.Types["BookFilter"]
	require.NotNil(t, filter)
	assert.Equal(t, ast.InputObject, filter.Kind)
	assert.Equal(t, "FICTION", filter.Fields.ForName("genre").DefaultValue.Raw)
	assert.Equal(t, "10", filter.Fields.ForName("limit").DefaultValue.Raw)

	assert.Equal(t, []string{"Named"}, parsed.Types["Person"].Interfaces)
	assert.ElementsMatch(t, []string{"Book", "Person"}, parsed.Types["Hit"].Types)
	assert.Equal(t, ast.Interface, parsed.Types["Named"].Kind)
}

type year int

type weight float64

type label string

func TestSDLNamedDefaults(t *testing.T) {
	query := &graphql.Object{
		Name: "Query",
		Fields: map[string]*graphql.Field{
			"films": {
				Name: "films",
				Type: &graphql.Scalar{Type: "String"},
				Args: []*graphql.Argument{
					{Name: "year", Type: &graphql.Scalar{Type: "Int"}, DefaultValue: year(2000)},
					{Name: "weight", Type: &graphql.Scalar{Type: "Float"}, DefaultValue: weight(0.5)},
					{Name: "label", Type: &graphql.Scalar{Type: "String"}, DefaultValue: label("new")},
				},
			},
		},
	}
	s := &graphql.Schema{Query: query, Types: map[string]graphql.Type{"Query": query}}

	parsed, err := gqlparser.LoadSchema(&ast.Source{Name: "films.graphql", Input: s.SDL()})
	require.NoError(t, err, s.SDL())

	args := parsed.Query.Fields.ForName("films").Arguments
	require.Len(t, args, 3)
	assert.Equal(t, ast.IntValue, args.ForName("year").DefaultValue.Kind)
	assert.Equal(t, "2000", args.ForName("year").DefaultValue.Raw)
	assert.Equal(t, ast.FloatValue, args.ForName("weight").DefaultValue.Kind)
	assert.Equal(t, "0.5", args.ForName("weight").DefaultValue.Raw)
	assert.Equal(t, ast.StringValue, args.ForName("label").DefaultValue.Kind)
	assert.Equal(t, "new", args.ForName("label").DefaultValue.Raw)
}

func TestIsBuiltinScalar(t *testing.T) {
	for _, name := range []string{"Int", "Float", "String", "Boolean", "ID"} {
		assert.True(t, graphql.IsBuiltinScalar(name), name)
	}
	assert.False(t, graphql.IsBuiltinScalar("Time"))
}
