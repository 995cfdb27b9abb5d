// Package schema provides the SchemaProvider contract the FHIRPath core
// consumes for type reflection, plus the concurrent tiered cache (§4.6) that
// keeps repeated lookups of the same type name cheap across many
// concurrent evaluations.
package schema

import (
	"context"

	"github.com/fhirpath-go/fhirpath/pkg/types"
)

// Provider is the external collaborator that knows how to resolve FHIR type
// names and choice properties (spec §6.5). Every method may suspend (it may
// hit a package registry, a database, or the network), so all of them take
// a context.Context. The analyzer and evaluator MUST tolerate a nil Provider
// or an error/false return by degrading to a permissive "unknown type" mode
// (spec §7 "Schema availability failures").
type Provider interface {
	// GetType resolves a qualified or bare type name to its reflection info.
	GetType(ctx context.Context, name string) (types.TypeReflectionInfo, bool, error)

	// IsChoiceProperty reports whether baseName is a `[x]` choice base on
	// resourceType (e.g. "value" on "Observation").
	IsChoiceProperty(ctx context.Context, resourceType, baseName string) (bool, error)

	// ResolveChoiceProperty inspects data (the raw JSON object currently
	// being navigated) and returns the concrete variant name present in it,
	// e.g. "valueQuantity", or ok=false if none of the variants is present.
	ResolveChoiceProperty(ctx context.Context, resourceType, baseName string, data []byte) (variantName string, ok bool, err error)

	// GetChoiceVariants enumerates every ElementInfo sharing baseName's
	// choice group.
	GetChoiceVariants(ctx context.Context, resourceType, baseName string) ([]types.ElementInfo, error)

	// IsSubtype reports whether child derives from (or equals) parent in the
	// FHIR type hierarchy.
	IsSubtype(ctx context.Context, child, parent string) (bool, error)
}
