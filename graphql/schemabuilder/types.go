package schemabuilder

// A Spec represents a Go type and set of methods to be converted into an
// Object in a GraphQL schema. Specs are accepted by BuildSchema next to plain
// host values.
//
// An example spec for a struct User could then look as follows:
//
//     type User struct {
//         ID   int64
//         Name string
//     }
//
//     var userSpec = Spec{
//         Type:    User{},
//         Methods: Methods{
//             "friends": func(u *User) []*User{
//                  return []*User{alice, bob},
//             },
//         }
//     }
//
type Spec struct {
	Name        string // Optional, defaults to Type's name.
	Description string
	Type        interface{}
	Methods     Methods
	Options     []ObjectOption
}

func (s *Spec) FieldFunc(name string, f interface{}) {
	if s.Methods == nil {
		s.Methods = make(Methods)
	}
	s.Methods[name] = f
}

// A Methods map represents the set of methods exposed on a Spec.
//
// The name of each method should be the exposed GraphQL name of the method (ie
// "friends", not "Friends"), and the values should be functions that take the
// a value from the Spec's Type as a first argument. Because different methods
// have different types, the Methods map uses interface{} to store the methods.
type Methods map[string]interface{}

// ID is exposed as the builtin ID scalar.
type ID string

// Union is a marker: a struct embedding Union becomes a GraphQL union whose
// members are the struct's other fields, each a pointer to an object. Exactly
// one member should be set.
//
//     type SearchResult struct {
//         schemabuilder.Union
//         *Book
//         *Person
//     }
type Union struct{}

var unionType = typeOf((*Union)(nil))

// A TypeNamer carries an explicit discriminant: the name of its GraphQL object
// type. Interfaces and unions use it before falling back to the value's Go
// type.
type TypeNamer interface {
	GetGraphQLTypeName() string
}

// RelayMutationType is implemented by mutation payloads so the client's
// clientMutationId can be echoed back.
type RelayMutationType interface {
	SetClientMutationId(id *string)
}

// ClientMutationID can be embedded in a mutation payload to implement
// RelayMutationType and expose the clientMutationId field.
type ClientMutationID struct {
	clientMutationID *string `graphql:",nullable"`
}

// GetClientMutationId returns the id the client sent with the mutation.
func (c *ClientMutationID) GetClientMutationId() *string {
	return c.clientMutationID
}

// SetClientMutationId sets the echoed id.
func (c *ClientMutationID) SetClientMutationId(id *string) {
	c.clientMutationID = id
}
