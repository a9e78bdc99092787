package match

// DefaultSynonyms maps a word to the alternatives accepted in its place.
// The table is directional: "resin" accepts "paste" but not the reverse
// unless declared. Deployments can override it via configuration.
func DefaultSynonyms() map[string][]string {
	return map[string][]string{
		"spoon":    {"scoop", "scooper"},
		"scooper":  {"scoop", "spoon"},
		"gummies":  {"gummy"},
		"gummy":    {"gummies"},
		"capsule":  {"capsules", "caps"},
		"capsules": {"capsule", "caps"},
		"resin":    {"paste", "tar", "pitch"},
		"violet":   {"miron"},
		"miron":    {"violet"},
	}
}
