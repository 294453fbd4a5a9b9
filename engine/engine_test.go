package engine_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/tinnou/glitr/engine"
	"github.com/tinnou/glitr/graphql"
	"github.com/tinnou/glitr/graphql/schemabuilder"
	"github.com/tinnou/glitr/logger"
)

type Genre int

const (
	Fiction Genre = iota
	NonFiction
)

func (g Genre) String() string {
	switch g {
	case Fiction:
		return "FICTION"
	case NonFiction:
		return "NON_FICTION"
	}
	return fmt.Sprintf("Genre(%d)", int(g))
}

type Year int

type ISBN string

type Person struct {
	ID   schemabuilder.ID
	Name string
}

type Book struct {
	ID        schemabuilder.ID
	Title     string
	Genre     Genre
	Year      Year
	ISBN      ISBN `graphql:"isbn"`
	Tags      []string
	Published time.Time
	AuthorID  schemabuilder.ID `graphql:"-"`
}

type Searchable interface {
	searchable()
}

func (*Book) searchable()   {}
func (*Person) searchable() {}

type Shape interface {
	GetArea() float64
}

type Circle struct {
	Radius float64
}

func (c *Circle) GetArea() float64 { return 3 * c.Radius * c.Radius }

type Square struct {
	Side float64
}

func (s *Square) GetArea() float64 { return s.Side * s.Side }

// Triangle implements Shape but is never registered.
type Triangle struct {
	Base, Height float64
}

func (t *Triangle) GetArea() float64 { return t.Base * t.Height / 2 }

type AddBookInput struct {
	Title string `json:"title"`
	Genre Genre  `json:"genre"`
}

type AddBookPayload struct {
	schemabuilder.ClientMutationID
	Book *Book
}

type library struct {
	books           []*Book
	people          map[schemabuilder.ID]*Person
	authorCalls     int64
	authorNameCalls int64

	mu         sync.Mutex
	batchSizes []int
}

func newLibrary() *library {
	published := time.Date(1965, time.August, 1, 0, 0, 0, 0, time.UTC)
	return &library{
		books: []*Book{
			{ID: "b1", Title: "Dune", Genre: Fiction, Year: 1965, ISBN: "978-0441013593", Tags: []string{"classic", "desert"}, Published: published, AuthorID: "p1"},
			{ID: "b2", Title: "Children of Dune", Genre: Fiction, Year: 1976, AuthorID: "p1"},
			{ID: "b3", Title: "Cosmos", Genre: NonFiction, Year: 1980, AuthorID: "p2"},
		},
		people: map[schemabuilder.ID]*Person{
			"p1": {ID: "p1", Name: "Frank Herbert"},
			"p2": {ID: "p2", Name: "Carl Sagan"},
		},
	}
}

func (l *library) schema(t *testing.T) *graphql.Schema {
	t.Helper()

	s := schemabuilder.NewSchema(schemabuilder.WithScalars(map[reflect.Type]string{
		reflect.TypeOf(ISBN("")): "ISBN",
	}))
	s.Enum(Genre(0), []interface{}{Fiction, NonFiction})
	s.Interface("Shape", (*Shape)(nil))
	s.Object("", Circle{})
	s.Object("", Square{})
	s.Union("SearchResult", (*Searchable)(nil), []interface{}{Book{}, Person{}})

	book := s.Object("Book", Book{})
	book.BatchFieldFunc("author", func(ctx context.Context, books map[int]*Book) (map[int]*Person, error) {
		atomic.AddInt64(&l.authorCalls, 1)
		l.mu.Lock()
		l.batchSizes = append(l.batchSizes, len(books))
		l.mu.Unlock()
		out := make(map[int]*Person, len(books))
		for i, b := range books {
			out[i] = l.people[b.AuthorID]
		}
		return out, nil
	})
	book.BatchFieldFunc("authorName", func(books map[int]*Book) map[int]*Person {
		atomic.AddInt64(&l.authorNameCalls, 1)
		out := make(map[int]*Person, len(books))
		for i, b := range books {
			out[i] = l.people[b.AuthorID]
		}
		return out
	}, schemabuilder.Then(func(p *Person) string { return p.Name }), schemabuilder.Nullable())
	s.Object("Person", Person{})

	query := s.Query()
	query.FieldFunc("books", func() []*Book {
		return l.books
	})
	query.FieldFunc("book", func(args struct{ ID schemabuilder.ID }) (*Book, error) {
		for _, b := range l.books {
			if b.ID == args.ID {
				return b, nil
			}
		}
		return nil, graphql.NewClientError("no book %s", args.ID)
	})
	query.FieldFunc("booksByGenre", func(args struct{ Genre Genre }) []*Book {
		var out []*Book
		for _, b := range l.books {
			if b.Genre == args.Genre {
				out = append(out, b)
			}
		}
		return out
	})
	query.FieldFunc("search", func(args struct{ Text string }) []Searchable {
		var out []Searchable
		for _, b := range l.books {
			if strings.Contains(b.Title, args.Text) {
				out = append(out, b)
			}
		}
		for _, id := range []schemabuilder.ID{"p1", "p2"} {
			if p := l.people[id]; strings.Contains(p.Name, args.Text) {
				out = append(out, p)
			}
		}
		return out
	})
	query.FieldFunc("shapes", func() []Shape {
		return []Shape{&Circle{Radius: 1}, &Square{Side: 2}}
	})
	query.FieldFunc("strangeShape", func() Shape {
		return &Triangle{Base: 2, Height: 3}
	})
	query.FieldFunc("broken", func() (*Book, error) {
		return nil, errors.New("database unavailable")
	})

	s.RelayMutation("addBook", AddBookInput{}, func(ctx context.Context, in *AddBookInput) (*AddBookPayload, error) {
		b := &Book{ID: schemabuilder.ID(fmt.Sprintf("b%d", len(l.books)+1)), Title: in.Title, Genre: in.Genre}
		l.books = append(l.books, b)
		return &AddBookPayload{Book: b}, nil
	})

	built, err := s.Build()
	require.NoError(t, err)
	return built
}

func newEngine(t *testing.T, l *library, opts ...engine.Option) *engine.Engine {
	t.Helper()
	e, err := engine.New(l.schema(t), opts...)
	require.NoError(t, err)
	return e
}

func toJSON(t *testing.T, v interface{}) string {
	t.Helper()
	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
	require.NoError(t, err)
	return string(out)
}

func TestExecuteScalarsAndEnums(t *testing.T) {
	e := newEngine(t, newLibrary())

	result := e.Execute(context.Background(), `{
		book(id: "b1") { id title genre year isbn tags published }
	}`, nil)
	require.Empty(t, result.Errors)
	assert.JSONEq(t, `{"book": {
		"id": "b1",
		"title": "Dune",
		"genre": "FICTION",
		"year": 1965,
		"isbn": "978-0441013593",
		"tags": ["classic", "desert"],
		"published": "1965-08-01T00:00:00Z"
	}}`, toJSON(t, result.Data))
}

func TestExecuteEnumArgument(t *testing.T) {
	e := newEngine(t, newLibrary())

	result := e.Execute(context.Background(), `query Q($genre: Genre!) {
		booksByGenre(genre: $genre) { title }
	}`, map[string]interface{}{"genre": "NON_FICTION"})
	require.Empty(t, result.Errors)
	assert.JSONEq(t, `{"booksByGenre": [{"title": "Cosmos"}]}`, toJSON(t, result.Data))
}

func TestExecuteClientError(t *testing.T) {
	e := newEngine(t, newLibrary())

	result := e.Execute(context.Background(), `{ book(id: "nope") { title } }`, nil)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "no book nope", result.Errors[0].Message)
	assert.JSONEq(t, `{"book": null}`, toJSON(t, result.Data))
}

func TestExecuteBatchesSiblings(t *testing.T) {
	l := newLibrary()
	e := newEngine(t, l)

	result := e.Execute(context.Background(), `{ books { title author { name } } }`, nil)
	require.Empty(t, result.Errors)
	assert.JSONEq(t, `{"books": [
		{"title": "Dune", "author": {"name": "Frank Herbert"}},
		{"title": "Children of Dune", "author": {"name": "Frank Herbert"}},
		{"title": "Cosmos", "author": {"name": "Carl Sagan"}}
	]}`, toJSON(t, result.Data))

	assert.Equal(t, int64(1), atomic.LoadInt64(&l.authorCalls))
	if diff := cmp.Diff([]int{3}, l.batchSizes); diff != "" {
		t.Errorf("unexpected batch sizes (-want +got):\n%s", diff)
	}
}

func TestExecuteBatchedChain(t *testing.T) {
	l := newLibrary()
	l.books = append(l.books, &Book{ID: "b4", Title: "Anonymous", AuthorID: "p9"})
	e := newEngine(t, l)

	result := e.Execute(context.Background(), `{ books { title authorName } }`, nil)
	require.Empty(t, result.Errors)
	assert.JSONEq(t, `{"books": [
		{"title": "Dune", "authorName": "Frank Herbert"},
		{"title": "Children of Dune", "authorName": "Frank Herbert"},
		{"title": "Cosmos", "authorName": "Carl Sagan"},
		{"title": "Anonymous", "authorName": null}
	]}`, toJSON(t, result.Data))
	assert.Equal(t, int64(1), atomic.LoadInt64(&l.authorNameCalls))
}

func TestExecuteInterface(t *testing.T) {
	e := newEngine(t, newLibrary())

	result := e.Execute(context.Background(), `{
		shapes {
			__typename
			area
			... on Circle { radius }
			... on Square { side }
		}
	}`, nil)
	require.Empty(t, result.Errors)
	assert.JSONEq(t, `{"shapes": [
		{"__typename": "Circle", "area": 3, "radius": 1},
		{"__typename": "Square", "area": 4, "side": 2}
	]}`, toJSON(t, result.Data))
}

func TestExecuteUnregisteredImplementation(t *testing.T) {
	e := newEngine(t, newLibrary())

	result := e.Execute(context.Background(), `{
		books { title }
		strangeShape { area }
	}`, nil)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "cannot resolve concrete type of Shape")
	assert.Contains(t, result.Errors[0].Message, "Triangle")
	assert.Contains(t, result.Errors[0].Message, "type is not registered")

	// The failure is confined to its field.
	data := result.Data.(map[string]interface{})
	assert.Nil(t, data["strangeShape"])
	assert.Len(t, data["books"], 3)
}

func TestExecuteUnion(t *testing.T) {
	e := newEngine(t, newLibrary())

	result := e.Execute(context.Background(), `{
		search(text: "Dun") {
			__typename
			... on Book { title }
			... on Person { name }
		}
		people: search(text: "Sagan") {
			__typename
			... on Person { name }
		}
	}`, nil)
	require.Empty(t, result.Errors)
	assert.JSONEq(t, `{
		"search": [
			{"__typename": "Book", "title": "Dune"},
			{"__typename": "Book", "title": "Children of Dune"}
		],
		"people": [
			{"__typename": "Person", "name": "Carl Sagan"}
		]
	}`, toJSON(t, result.Data))
}

func TestExecuteRelayMutation(t *testing.T) {
	l := newLibrary()
	e := newEngine(t, l)

	result := e.Execute(context.Background(), `mutation M($input: AddBookInput!) {
		addBook(input: $input) {
			clientMutationId
			book { id title genre }
		}
	}`, map[string]interface{}{
		"input": map[string]interface{}{
			"title":            "Pale Blue Dot",
			"genre":            "NON_FICTION",
			"clientMutationId": "abc123",
		},
	})
	require.Empty(t, result.Errors)
	assert.JSONEq(t, `{"addBook": {
		"clientMutationId": "abc123",
		"book": {"id": "b4", "title": "Pale Blue Dot", "genre": "NON_FICTION"}
	}}`, toJSON(t, result.Data))
	assert.Len(t, l.books, 4)

	result = e.Execute(context.Background(), `mutation {
		addBook(input: {title: "Contact", genre: FICTION}) { clientMutationId book { id } }
	}`, nil)
	require.Empty(t, result.Errors)
	assert.JSONEq(t, `{"addBook": {"clientMutationId": null, "book": {"id": "b5"}}}`, toJSON(t, result.Data))
}

func TestExecuteSanitizedErrors(t *testing.T) {
	var logs bytes.Buffer
	e := newEngine(t, newLibrary(),
		engine.WithSanitizedErrors(),
		engine.WithLogger(logger.New(&logs, logger.LevelError)),
	)

	result := e.Execute(context.Background(), `{ broken { title } }`, nil)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Internal server error", result.Errors[0].Message)
	assert.Contains(t, logs.String(), "database unavailable")

	result = e.Execute(context.Background(), `{ book(id: "nope") { title } }`, nil)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "no book nope", result.Errors[0].Message)

	// Errors in the query itself are kept.
	result = e.Execute(context.Background(), `{ nosuchfield }`, nil)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "nosuchfield")
}

func TestExecuteMiddlewares(t *testing.T) {
	var seen []string
	e := newEngine(t, newLibrary(), engine.WithMiddlewares(
		func(input *engine.ComputationInput, output *engine.ComputationOutput, next engine.NextFunc) {
			seen = append(seen, "outer")
			next(input, output)
			output.Metadata["errors"] = len(output.Result.Errors)
		},
		func(input *engine.ComputationInput, output *engine.ComputationOutput, next engine.NextFunc) {
			seen = append(seen, "inner")
			input.Query = `{ books { id } }`
			next(input, output)
		},
	))

	result := e.Execute(context.Background(), `{ shapes { area } }`, nil)
	require.Empty(t, result.Errors)
	assert.Equal(t, []string{"outer", "inner"}, seen)
	assert.JSONEq(t, `{"books": [{"id": "b1"}, {"id": "b2"}, {"id": "b3"}]}`, toJSON(t, result.Data))
	assert.Equal(t, map[string]interface{}{"errors": 0}, result.Extensions)
}

func TestExecuteConcurrently(t *testing.T) {
	e := newEngine(t, newLibrary())

	var g errgroup.Group
	for i := 0; i < 32; i++ {
		query := `{ books { title genre author { name } } }`
		if i%2 == 1 {
			query = `{ shapes { __typename area } booksByGenre(genre: FICTION) { id } }`
		}
		g.Go(func() error {
			result := e.Execute(context.Background(), query, nil)
			if len(result.Errors) > 0 {
				return result.Errors[0]
			}
			if result.Data == nil {
				return errors.New("no data")
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestNewRejectsNilSchema(t *testing.T) {
	_, err := engine.New(nil)
	assert.Error(t, err)
}
