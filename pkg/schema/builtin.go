package schema

// EssentialTypes are queued with Essential priority at startup (spec §4.6).
var EssentialTypes = []string{
	"Patient", "Observation", "Practitioner", "Organization", "Bundle",
}

// CommonTypes are queued with Common priority at startup — the complex
// datatypes almost every resource references.
var CommonTypes = []string{
	"HumanName", "Address", "CodeableConcept", "Coding", "Reference",
	"Quantity", "Period", "Meta", "Identifier", "ContactPoint", "Narrative",
	"Extension", "Annotation", "Attachment", "Ratio", "Range", "SampledData",
	"Signature", "Timing", "Money", "Age", "Distance", "Duration", "Count",
}
