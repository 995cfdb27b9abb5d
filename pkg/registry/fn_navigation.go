package registry

import (
	"github.com/fhirpath-go/fhirpath/pkg/fhirjson"
	"github.com/fhirpath-go/fhirpath/pkg/types"
)

// directChildren delegates to fhirjson.Children; kept as a thin wrapper so
// fn_collection.go's children()/descendants() read the same as the rest of
// this package's fn* naming.
func directChildren(v types.Value) []types.Value {
	return fhirjson.Children(v)
}
