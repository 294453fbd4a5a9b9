// Package schemabuilder builds a graphql.Schema from plain Go types by
// reflection.
//
// For example, a library could expose its books and authors as follows:
//
//    type Book struct {
//        ID     schemabuilder.ID
//        Title  string
//        Author *Person
//    }
//
//    type Person struct {
//        ID    schemabuilder.ID
//        Name  string
//        Books []*Book `graphql:",nullable"`
//    }
//
//    schema := schemabuilder.NewSchema()
//    schema.Object("Book", Book{})
//    schema.Object("Person", Person{})
//    schema.Query().FieldFunc("book", func(ctx context.Context, args struct{ ID schemabuilder.ID }) (*Book, error) {
//        return db.Book(ctx, args.ID)
//    })
//    built, err := schema.Build()
//
// BuildSchema does the same from a list of host values and explicit roots.
//
// Type mapping:
// - scalars: bools, ints, floats, strings, ID, time.Time and []byte, and
//   types registered with WithScalars
// - enums: types registered with Enum
// - objects: structs; interfaces: Go interfaces; unions: interfaces
//   registered with Union, or structs embedding Union
// - lists: slices and arrays of other supported types
// - input objects: structs used as arguments or mutation input
//
// The fields of an object are its exported struct fields and its Get/Is
// accessor methods (GetTitle becomes title), in alphabetical order. A graphql
// struct tag, or Member options, rename, exclude, document or mark a member:
//
//    Title string `graphql:"name,nullable,description=The book's title"`
//
// Fields are non-null unless marked nullable; a field named id is always
// non-null. Pointer list elements are nullable.
//
// FieldFunc and BatchFieldFunc add computed fields. A FieldFunc can optionally
// take a context, the source object and arguments, and return a result and an
// error. Arguments are either a struct, whose fields declare the arguments, or
// a map[string]interface{} with arguments declared through Arg options.
//
// Types may refer to each other in cycles: every type is built once, and
// references to a type that is still being built are resolved when the
// schema is finished. The finished schema is immutable.
package schemabuilder
