package schemabuilder

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/samsarahq/go/oops"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// A Decoder turns the input map of a mutation or field into a Go value.
// target is a pointer to a new value of the input type.
type Decoder interface {
	Decode(input map[string]interface{}, target interface{}) error
}

// DecoderFunc adapts a function to a Decoder.
type DecoderFunc func(input map[string]interface{}, target interface{}) error

func (f DecoderFunc) Decode(input map[string]interface{}, target interface{}) error {
	return f(input, target)
}

type jsonDecoder struct {
	api jsoniter.API
}

// NewJSONDecoder returns the default Decoder. It round-trips the input through
// JSON, so struct fields match by json tag or case-insensitive name and
// unknown fields are ignored.
func NewJSONDecoder() Decoder {
	return &jsonDecoder{api: jsonAPI}
}

func (d *jsonDecoder) Decode(input map[string]interface{}, target interface{}) error {
	raw, err := d.api.Marshal(input)
	if err != nil {
		return oops.Wrapf(err, "encoding input")
	}
	if err := d.api.Unmarshal(raw, target); err != nil {
		return oops.Wrapf(err, "decoding input into %T", target)
	}
	return nil
}
