package categorize

import (
	"fmt"
	"sort"
	"strings"
)

// Taxonomy maps every category to its allowed subcategories. It is closed:
// classifications outside it are discarded.
var Taxonomy = map[string][]string{
	"food":           {"breakfast", "lunch", "dinner", "snack"},
	"health":         {"medicine", "medical", "insurance"},
	"transportation": {"parking", "fuel", "taxi", "public transport"},
	"personal":       {"beauty", "culture", "interest", "tourism", "sport", "apparel", "entertainment"},
	"salary":         {"base salary", "freelance income", "allowance"},
	"education":      {"stationery", "courses & certification", "tuition"},
	"household":      {"furniture & appliances", "home maintenance & services", "groceries & supplies", "utilities"},
	"work-related":   {"office supplies", "electronics & devices", "software subscriptions"},
}

// Categories returns the category names in sorted order
func Categories() []string {
	names := make([]string, 0, len(Taxonomy))
	for name := range Taxonomy {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Valid reports whether the pair belongs to the taxonomy
func Valid(category, subcategory string) bool {
	for _, sub := range Taxonomy[category] {
		if sub == subcategory {
			return true
		}
	}
	return false
}

// describeTaxonomy renders the taxonomy as prompt bullet lines
func describeTaxonomy() string {
	var sb strings.Builder
	for _, name := range Categories() {
		fmt.Fprintf(&sb, "- %s: %s\n", name, strings.Join(Taxonomy[name], ", "))
	}
	return sb.String()
}

// taxonomySchema builds a JSON Schema accepting exactly the taxonomy pairs
func taxonomySchema() map[string]interface{} {
	branches := make([]interface{}, 0, len(Taxonomy))
	for _, name := range Categories() {
		subs := make([]interface{}, 0, len(Taxonomy[name]))
		for _, sub := range Taxonomy[name] {
			subs = append(subs, sub)
		}
		branches = append(branches, map[string]interface{}{
			"properties": map[string]interface{}{
				"category":    map[string]interface{}{"enum": []interface{}{name}},
				"subcategory": map[string]interface{}{"enum": subs},
			},
		})
	}

	return map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"category", "subcategory"},
		"properties": map[string]interface{}{
			"category":    map[string]interface{}{"type": "string"},
			"subcategory": map[string]interface{}{"type": "string"},
		},
		"oneOf": branches,
	}
}
