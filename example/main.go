package main

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/tinnou/glitr/engine"
	"github.com/tinnou/glitr/graphql"
	"github.com/tinnou/glitr/graphql/schemabuilder"
	"github.com/tinnou/glitr/logger"
	"github.com/tinnou/glitr/validation"
)

type Genre int

const (
	Fiction Genre = iota
	NonFiction
)

func (g Genre) String() string {
	if g == NonFiction {
		return "NON_FICTION"
	}
	return "FICTION"
}

type Author struct {
	ID   schemabuilder.ID
	Name string
}

type Book struct {
	ID        schemabuilder.ID
	Title     string
	Genre     Genre
	Published time.Time
	AuthorID  schemabuilder.ID `graphql:"-"`
}

type AddBookInput struct {
	Title    string           `json:"title"`
	Genre    Genre            `json:"genre"`
	AuthorID schemabuilder.ID `json:"authorId"`
}

type AddBookPayload struct {
	schemabuilder.ClientMutationID
	Book *Book
}

const addBookSchema = `{
	"type": "object",
	"required": ["title", "authorId"],
	"properties": {
		"title": {"type": "string", "minLength": 1},
		"authorId": {"type": "string", "minLength": 1}
	}
}`

type Server struct {
	mu      sync.RWMutex
	books   map[schemabuilder.ID]*Book
	authors map[schemabuilder.ID]*Author
}

func newID() schemabuilder.ID {
	return schemabuilder.ID(uuid.NewString())
}

func (s *Server) registerBook(schema *schemabuilder.Schema) {
	object := schema.Object("Book", Book{}, schemabuilder.Description("A single book."))

	// Authors of sibling books are loaded in one call.
	object.BatchFieldFunc("author", func(ctx context.Context, books map[int]*Book) (map[int]*Author, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()

		authors := make(map[int]*Author, len(books))
		for i, book := range books {
			authors[i] = s.authors[book.AuthorID]
		}
		return authors, nil
	})
}

func (s *Server) registerQuery(schema *schemabuilder.Schema) {
	object := schema.Query()

	object.FieldFunc("books", func(ctx context.Context, args struct{ Genre *Genre }) []*Book {
		s.mu.RLock()
		defer s.mu.RUnlock()

		var result []*Book
		for _, book := range s.books {
			if args.Genre == nil || *args.Genre == book.Genre {
				result = append(result, book)
			}
		}
		sort.Slice(result, func(a, b int) bool { return result[a].Title < result[b].Title })
		return result
	}, schemabuilder.AsConnection())

	object.FieldFunc("book", func(ctx context.Context, args struct{ ID schemabuilder.ID }) (*Book, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()

		book, ok := s.books[args.ID]
		if !ok {
			return nil, graphql.NewClientError("no book with id %s", args.ID)
		}
		return book, nil
	})
}

func (s *Server) registerMutation(schema *schemabuilder.Schema) {
	schema.RelayMutation("addBook", AddBookInput{}, func(ctx context.Context, input *AddBookInput) (*AddBookPayload, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if _, ok := s.authors[input.AuthorID]; !ok {
			return nil, graphql.NewClientError("unknown author %s", input.AuthorID)
		}
		book := &Book{
			ID:        newID(),
			Title:     input.Title,
			Genre:     input.Genre,
			Published: time.Now().UTC(),
			AuthorID:  input.AuthorID,
		}
		s.books[book.ID] = book
		return &AddBookPayload{Book: book}, nil
	},
		schemabuilder.WithValidator(validation.MustJSONSchema(addBookSchema)),
		schemabuilder.MutationDescription("Adds a book to the library."),
	)
}

func (s *Server) Schema(log logger.Logger) *graphql.Schema {
	schema := schemabuilder.NewSchema(schemabuilder.WithLogger(log))
	schema.Enum(Genre(0), []interface{}{Fiction, NonFiction})
	s.registerBook(schema)
	s.registerQuery(schema)
	s.registerMutation(schema)
	return schema.MustBuild()
}

func main() {
	log := logger.NewStdout()

	ursula := &Author{ID: newID(), Name: "Ursula K. Le Guin"}
	server := &Server{
		books:   make(map[schemabuilder.ID]*Book),
		authors: map[schemabuilder.ID]*Author{ursula.ID: ursula},
	}
	for _, title := range []string{"The Dispossessed", "The Left Hand of Darkness"} {
		id := newID()
		server.books[id] = &Book{ID: id, Title: title, Genre: Fiction, Published: time.Date(1974, 5, 1, 0, 0, 0, 0, time.UTC), AuthorID: ursula.ID}
	}

	schema := server.Schema(log)
	e, err := engine.New(schema, engine.WithLogger(log), engine.WithSanitizedErrors())
	if err != nil {
		panic(err)
	}

	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	ctx := context.Background()
	enc.Encode(e.Execute(ctx, `
		mutation ($author: ID!) {
			addBook(input: {title: "Always Coming Home", genre: FICTION, authorId: $author, clientMutationId: "1"}) {
				clientMutationId
				book { id title }
			}
		}`, map[string]interface{}{"author": string(ursula.ID)}))

	enc.Encode(e.Execute(ctx, `{
		books(first: 10) {
			totalCount
			edges { node { title genre published author { name } } }
			pageInfo { hasNextPage endCursor }
		}
	}`, nil))

	os.Stdout.WriteString(schema.SDL())
}
