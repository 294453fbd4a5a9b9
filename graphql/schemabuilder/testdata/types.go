// Package testdata holds types whose names collide with types declared in
// the schemabuilder tests.
package testdata

type DupedEnumType int32

type DupedScalarType string

type DupedStructType struct {
	Field string
}

type Foo struct {
	Bar string
}
