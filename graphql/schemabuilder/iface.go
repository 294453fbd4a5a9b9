package schemabuilder

import (
	"fmt"
	"reflect"

	"github.com/tinnou/glitr/graphql"
)

// buildInterface is the interface factory. The interface's fields are its
// accessor methods; its possible types are linked once every object is known.
func (sb *schemaBuilder) buildInterface(typ reflect.Type, name string) (graphql.Type, error) {
	config := sb.objectConfig(typ)

	desc, err := sb.extractor(config).describe(typ, KindInterface, name)
	if err != nil {
		return nil, err
	}

	iface := &graphql.Interface{
		Name:          name,
		Description:   desc.Description,
		Fields:        make(map[string]*graphql.Field),
		PossibleTypes: make(map[string]*graphql.Object),
	}
	sb.interfaces[typ] = iface

	for _, fd := range desc.Fields {
		field, err := sb.buildMemberField(typ, fd)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", name, fd.Name, err)
		}
		iface.Fields[fd.Name] = field
	}

	if len(iface.Fields) == 0 {
		return nil, graphql.NewConfigError(name, "", "interface has no accessor methods")
	}
	return iface, nil
}
