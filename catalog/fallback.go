package catalog

// FallbackName is the catalog name reported when the built-in catalog is used.
const FallbackName = "fallback"

// Fallback returns the built-in catalog used when no source can be read.
func Fallback() map[string]RawControl {
	return map[string]RawControl{
		"5.1": {Name: "Information security policies", Keywords: []string{"policy", "policies", "information security"}},
		"5.2": {Name: "Information security roles and responsibilities", Keywords: []string{"roles", "responsibilities"}},
		"6.1": {Name: "Screening", Keywords: []string{"screening", "background", "employment"}},
		"7.1": {Name: "Physical security perimeters", Keywords: []string{"physical security", "perimeter"}},
		"8.1": {Name: "User endpoint devices", Keywords: []string{"endpoint", "devices", "user"}},
	}
}
