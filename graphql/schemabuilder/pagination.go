package schemabuilder

import (
	"context"
	"encoding/base64"
	"fmt"
	"reflect"
	"strconv"

	"github.com/tinnou/glitr/graphql"
	"github.com/tinnou/glitr/internal"
)

// Connection conforms to the GraphQL Connection type in the Relay Pagination spec.
type Connection struct {
	TotalCount int64
	Edges      []Edge
	PageInfo   PageInfo
}

// paginateManually applies the pagination arguments to the edges in memory and sets hasNextPage +
// hasPrevPage. The behavior is expected to conform to the Relay Cursor spec:
// https://facebook.github.io/relay/graphql/connections.htm#EdgesToReturn()
func (c *Connection) paginateManually(args PaginationArgs) error {
	if safeInt64Ptr(args.First) < 0 {
		return graphql.NewClientError("first cannot be a negative integer")
	}

	var elemsBefore bool
	c.Edges, elemsBefore = applyCursorsToAllEdges(c.Edges, args.After)
	c.PageInfo.HasPrevPage = args.After != nil && elemsBefore

	if args.First != nil && len(c.Edges) > int(*args.First) {
		c.Edges = c.Edges[:int(*args.First)]
		c.PageInfo.HasNextPage = true
	}
	return nil
}

// setCursors sets the start and end cursors of the current page.
func (c *Connection) setCursors() {
	if len(c.Edges) == 0 {
		return
	}
	c.PageInfo.EndCursor = c.Edges[len(c.Edges)-1].Cursor
	c.PageInfo.StartCursor = c.Edges[0].Cursor
}

// PageInfo contains information for pagination on a connection type.
type PageInfo struct {
	HasNextPage bool
	EndCursor   string
	HasPrevPage bool
	StartCursor string
}

// Edge consists of a node paired with its b64 encoded cursor.
type Edge struct {
	Node   interface{}
	Cursor string
}

// PaginationArgs are the forward pagination arguments of a connection field.
type PaginationArgs struct {
	// first: n
	First *int64
	// after: cursor
	After *string
}

func safeInt64Ptr(i *int64) int64 {
	if i == nil {
		return 0
	}
	return *i
}

// getCursorIndex returns the index corresponding to the cursor in the slice.
func getCursorIndex(edges []Edge, cursor string) int {
	for i, val := range edges {
		if val.Cursor == cursor {
			return i
		}
	}
	return -1
}

// applyCursorsToAllEdges returns the slice of edges after applying the after
// argument. It also reports whether any edges were dropped before the cursor.
// An unknown cursor leaves the edges untouched.
func applyCursorsToAllEdges(edges []Edge, after *string) ([]Edge, bool) {
	if after == nil {
		return edges, false
	}
	i := getCursorIndex(edges, *after)
	if i == -1 {
		return edges, false
	}
	return edges[i+1:], true
}

// cursor encodes the position of a node in the full list.
func cursor(i int) string {
	return base64.StdEncoding.EncodeToString([]byte("cursor" + strconv.Itoa(i)))
}

func nodesToEdges(nodes []interface{}) []Edge {
	edges := make([]Edge, 0, len(nodes))
	for i, node := range nodes {
		edges = append(edges, Edge{Node: node, Cursor: cursor(i)})
	}
	return edges
}

func castSlice(slice interface{}) []interface{} {
	v := internal.Indirect(reflect.ValueOf(slice))
	if !v.IsValid() {
		return nil
	}
	if items, ok := v.Interface().([]interface{}); ok {
		return items
	}
	items := make([]interface{}, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		items = append(items, v.Index(i).Interface())
	}
	return items
}

// parsePaginationArgs reads first and after from a field's arguments.
func parsePaginationArgs(args map[string]interface{}) (PaginationArgs, error) {
	var p PaginationArgs
	if first, ok := internal.NormalizeScalar(args["first"]).(int64); ok {
		p.First = &first
	} else if args["first"] != nil {
		return p, graphql.NewClientError("first must be an integer")
	}
	if after, ok := args["after"].(string); ok {
		p.After = &after
	}
	return p, nil
}

// paginate turns the list computed by resolve into a Connection.
func paginate(resolve graphql.Resolver) graphql.Resolver {
	return func(ctx context.Context, source interface{}, args map[string]interface{}) (interface{}, error) {
		pargs, err := parsePaginationArgs(args)
		if err != nil {
			return nil, err
		}
		value, err := resolve(ctx, source, args)
		if err != nil {
			return nil, err
		}

		nodes := castSlice(value)
		c := &Connection{
			TotalCount: int64(len(nodes)),
			Edges:      nodesToEdges(nodes),
		}
		if err := c.paginateManually(pargs); err != nil {
			return nil, err
		}
		c.setCursors()
		return c, nil
	}
}

// connectionArgs declares first and after.
func (sb *schemaBuilder) connectionArgs() []*graphql.Argument {
	return []*graphql.Argument{
		{Name: "after", Type: sb.scalar("String")},
		{Name: "first", Type: sb.scalar("Int")},
	}
}

// connectionType returns <Node>Connection!, building the connection and edge
// types of a node type on first use.
func (sb *schemaBuilder) connectionType(elem reflect.Type) (graphql.Type, error) {
	nodeType, err := sb.getType(elem)
	if err != nil {
		return nil, err
	}
	nodeName := graphql.Named(nodeType).String()
	if typ, ok := sb.connections[nodeName]; ok {
		return typ, nil
	}

	edge, err := sb.edgeType(nodeName, nodeType)
	if err != nil {
		return nil, err
	}
	pageInfo, err := sb.pageInfoType()
	if err != nil {
		return nil, err
	}

	name := nodeName + "Connection"
	if err := sb.claim(name, generatedClaim("connection of "+nodeName)); err != nil {
		return nil, err
	}
	connection := &graphql.Object{
		Name: name,
		Fields: map[string]*graphql.Field{
			"totalCount": {
				Name: "totalCount",
				Type: &graphql.NonNull{Type: sb.scalar("Int")},
				Resolve: connectionResolver(func(c *Connection) interface{} {
					return c.TotalCount
				}),
			},
			"edges": {
				Name: "edges",
				Type: &graphql.NonNull{Type: &graphql.List{Type: &graphql.NonNull{Type: edge}}},
				Resolve: connectionResolver(func(c *Connection) interface{} {
					return c.Edges
				}),
			},
			"pageInfo": {
				Name: "pageInfo",
				Type: &graphql.NonNull{Type: pageInfo},
				Resolve: connectionResolver(func(c *Connection) interface{} {
					return c.PageInfo
				}),
			},
		},
	}
	sb.named[name] = connection

	typ := &graphql.NonNull{Type: connection}
	sb.connections[nodeName] = typ
	return typ, nil
}

func connectionResolver(get func(*Connection) interface{}) graphql.Resolver {
	return func(ctx context.Context, source interface{}, args map[string]interface{}) (interface{}, error) {
		c, ok := source.(*Connection)
		if !ok {
			return nil, fmt.Errorf("error resolving connection field on %T", source)
		}
		return get(c), nil
	}
}

// edgeType wraps the node type in an Edge type conforming to the Relay spec.
func (sb *schemaBuilder) edgeType(nodeName string, nodeType graphql.Type) (*graphql.Object, error) {
	name := nodeName + "Edge"
	if err := sb.claim(name, generatedClaim("edge of "+nodeName)); err != nil {
		return nil, err
	}
	edge := &graphql.Object{
		Name: name,
		Fields: map[string]*graphql.Field{
			"node": {
				Name: "node",
				Type: applyNullability(nodeType, false),
				Resolve: func(ctx context.Context, source interface{}, args map[string]interface{}) (interface{}, error) {
					if value, ok := source.(Edge); ok {
						return value.Node, nil
					}
					return nil, fmt.Errorf("error resolving node in edge")
				},
			},
			"cursor": {
				Name: "cursor",
				Type: &graphql.NonNull{Type: sb.scalar("String")},
				Resolve: func(ctx context.Context, source interface{}, args map[string]interface{}) (interface{}, error) {
					if value, ok := source.(Edge); ok {
						return value.Cursor, nil
					}
					return nil, fmt.Errorf("error resolving cursor in edge")
				},
			},
		},
	}
	sb.named[name] = edge
	return edge, nil
}

// pageInfoType returns the PageInfo object shared by all connections.
func (sb *schemaBuilder) pageInfoType() (*graphql.Object, error) {
	if typ, ok := sb.named["PageInfo"].(*graphql.Object); ok && sb.identities["PageInfo"] == generatedClaim("page info") {
		return typ, nil
	}
	if err := sb.claim("PageInfo", generatedClaim("page info")); err != nil {
		return nil, err
	}

	boolean := &graphql.NonNull{Type: sb.scalar("Boolean")}
	pageInfo := &graphql.Object{
		Name: "PageInfo",
		Fields: map[string]*graphql.Field{
			"hasNextPage": {Name: "hasNextPage", Type: boolean, Resolve: pageInfoResolver(func(p PageInfo) interface{} {
				return p.HasNextPage
			})},
			"hasPreviousPage": {Name: "hasPreviousPage", Type: boolean, Resolve: pageInfoResolver(func(p PageInfo) interface{} {
				return p.HasPrevPage
			})},
			"startCursor": {Name: "startCursor", Type: sb.scalar("String"), Resolve: pageInfoResolver(func(p PageInfo) interface{} {
				return optionalCursor(p.StartCursor)
			})},
			"endCursor": {Name: "endCursor", Type: sb.scalar("String"), Resolve: pageInfoResolver(func(p PageInfo) interface{} {
				return optionalCursor(p.EndCursor)
			})},
		},
	}
	sb.named["PageInfo"] = pageInfo
	return pageInfo, nil
}

func pageInfoResolver(get func(PageInfo) interface{}) graphql.Resolver {
	return func(ctx context.Context, source interface{}, args map[string]interface{}) (interface{}, error) {
		p, ok := source.(PageInfo)
		if !ok {
			return nil, fmt.Errorf("error resolving page info on %T", source)
		}
		return get(p), nil
	}
}

func optionalCursor(c string) interface{} {
	if c == "" {
		return nil
	}
	return c
}
