package internal

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

type year int

type inner struct {
	Name string
}

type outer struct {
	*inner
	hidden inner
	Count  year
}

func TestNormalizeScalar(t *testing.T) {
	s := "x"
	var nilString *string
	assert.Equal(t, int64(5), NormalizeScalar(year(5)))
	assert.Equal(t, "x", NormalizeScalar(&s))
	assert.Nil(t, NormalizeScalar(nilString))
	assert.Equal(t, uint64(3), NormalizeScalar(uint8(3)))
	assert.Equal(t, 1.5, NormalizeScalar(float32(1.5)))
	assert.Equal(t, inner{Name: "a"}, NormalizeScalar(&inner{Name: "a"}))
}

func TestIsNil(t *testing.T) {
	var p *inner
	var m map[string]int
	assert.True(t, IsNil(nil))
	assert.True(t, IsNil(p))
	assert.True(t, IsNil(m))
	assert.False(t, IsNil(inner{}))
	assert.False(t, IsNil(0))
}

func TestExportedPath(t *testing.T) {
	typ := reflect.TypeOf(outer{})
	name, _ := typ.FieldByName("Name")
	hidden, _ := typ.FieldByName("hidden")
	count, _ := typ.FieldByName("Count")

	assert.False(t, ExportedPath(typ, name.Index), "promoted through unexported embedded type")
	assert.False(t, ExportedPath(typ, hidden.Index))
	assert.True(t, ExportedPath(typ, count.Index))
}

func TestFieldByIndexNilEmbedded(t *testing.T) {
	v := reflect.ValueOf(outer{Count: 2})
	name, _ := v.Type().FieldByName("Name")
	assert.False(t, FieldByIndex(v, name.Index).IsValid())

	v = reflect.ValueOf(outer{inner: &inner{Name: "a"}})
	assert.Equal(t, "a", FieldByIndex(v, name.Index).String())
}
