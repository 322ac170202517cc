package query

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"unicode"
)

const (
	maxPropertyValues = 5
	maxUsersPerType   = 10
	maxListed         = 20
	maxSimilar        = 15
	maxGenericRows    = 10
)

var relationEmoji = map[string]string{
	"uses":         "🔧",
	"implements":   "⚙️",
	"is_a":         "🏷️",
	"part_of":      "🧩",
	"extends":      "📈",
	"optimizes":    "⚡",
	"measures":     "📊",
	"developed_by": "👤",
	"proposed_by":  "💡",
	"applies_to":   "🎯",
}

// RelationEmoji returns the marker shown next to a relation name.
func RelationEmoji(relation string) string {
	if e, ok := relationEmoji[strings.ToLower(relation)]; ok {
		return e
	}
	return "🔗"
}

type renderer func(rows []Row, entities []string) FormattedResponse

// Formatter renders result rows as answers. It is stateless.
type Formatter struct {
	renderers map[QueryType]renderer
}

// NewFormatter returns a formatter with a renderer per query type.
func NewFormatter() *Formatter {
	return &Formatter{renderers: map[QueryType]renderer{
		WhatIs:       formatWhatIs,
		WhatUses:     formatWhatUses,
		WhatIsTypeOf: formatTypeOf,
		WhoCreated:   formatWhoCreated,
		HowRelated:   formatHowRelated,
		ListByType:   formatListByType,
		FindSimilar:  formatFindSimilar,
	}}
}

// Format turns rows into an answer. Empty results get confidence 0.
func (f *Formatter) Format(rows []Row, queryType QueryType, question string, entities []string) FormattedResponse {
	log.Printf("formatter: formatting %s with %d rows", queryType, len(rows))
	if len(rows) == 0 {
		return FormattedResponse{
			Answer:     fmt.Sprintf("❌ No results found for: %q", question),
			Metadata:   map[string]any{"result_count": 0, "query_type": string(queryType)},
			RawResults: []Row{},
			Confidence: 0,
		}
	}
	render, ok := f.renderers[queryType]
	if !ok {
		return formatGeneric(rows, queryType)
	}
	return render(rows, entities)
}

// Error reports a failure to answer as a zero-confidence response.
func (f *Formatter) Error(err error, rows []Row) FormattedResponse {
	if rows == nil {
		rows = []Row{}
	}
	return FormattedResponse{
		Answer:     fmt.Sprintf("⚠️ Could not answer the question: %v", err),
		Metadata:   map[string]any{"error": err.Error(), "result_count": len(rows)},
		RawResults: rows,
		Confidence: 0,
	}
}

func formatWhatIs(rows []Row, entities []string) FormattedResponse {
	var entityType, label string
	props := map[string][]string{}
	for _, r := range rows {
		if v, ok := r["type"]; ok {
			entityType = cleanURI(str(v))
		}
		if v, ok := r["label"]; ok {
			label = str(v)
		}
		p, okP := r["property"]
		v, okV := r["value"]
		if okP && okV {
			name := cleanURI(str(p))
			props[name] = append(props[name], displayValue(v))
		}
	}

	var parts []string
	if label != "" {
		parts = append(parts, fmt.Sprintf("📋 **%s**", label))
	} else {
		parts = append(parts, fmt.Sprintf("📋 **%s**", titleCase(firstOr(entities, "entity"))))
	}
	if entityType != "" {
		parts = append(parts, fmt.Sprintf("🏷️ **Type**: %s", titleCase(entityType)))
	}

	names := make([]string, 0, len(props))
	for name := range props {
		if name != "type" && name != "label" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) > 0 {
		parts = append(parts, "📊 **Properties**:")
		for _, name := range names {
			values := uniqueSorted(props[name])
			if len(values) > maxPropertyValues {
				values = values[:maxPropertyValues]
			}
			parts = append(parts, fmt.Sprintf("   • **%s**: %s", titleCase(name), strings.Join(values, ", ")))
		}
	}

	confidence := 0.6
	if label != "" {
		confidence = 0.9
	}
	return FormattedResponse{
		Answer:     strings.Join(parts, "\n"),
		Metadata:   map[string]any{"entity_type": entityType, "result_count": len(rows)},
		RawResults: rows,
		Confidence: confidence,
	}
}

func formatWhatUses(rows []Row, entities []string) FormattedResponse {
	type user struct{ label, relation string }
	byType := map[string][]user{}
	for _, r := range rows {
		label := "N/A"
		if v, ok := r["userLabel"]; ok {
			label = str(v)
		}
		userType := "unknown"
		if v, ok := r["userType"]; ok {
			userType = cleanURI(str(v))
		}
		byType[userType] = append(byType[userType], user{label: label, relation: cleanURI(str(r["relation"]))})
	}

	target := titleCase(firstOr(entities, "entity"))
	parts := []string{fmt.Sprintf("🔍 **Entities that use %s:**", target), ""}

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	total := 0
	for _, t := range types {
		parts = append(parts, fmt.Sprintf("📂 **%ss:**", titleCase(t)))
		seen := map[string]bool{}
		shown := 0
		for _, u := range byType[t] {
			if seen[u.label] || shown == maxUsersPerType {
				continue
			}
			seen[u.label] = true
			shown++
			parts = append(parts, fmt.Sprintf("   %s %s", RelationEmoji(u.relation), u.label))
		}
		total += shown
	}
	if total == 0 {
		parts = []string{fmt.Sprintf("🔍 No entity found that uses **%s** directly.", target)}
	}

	confidence := 0.3
	if total > 0 {
		confidence = 0.8
	}
	return FormattedResponse{
		Answer:     strings.Join(parts, "\n"),
		Metadata:   map[string]any{"total_users": total, "result_count": len(rows)},
		RawResults: rows,
		Confidence: confidence,
	}
}

func formatTypeOf(rows []Row, entities []string) FormattedResponse {
	parents := labelsOf(rows, "parentLabel", "parent")
	target := titleCase(firstOr(entities, "entity"))

	var parts []string
	if len(parents) > 0 {
		parts = append(parts, fmt.Sprintf("🎯 **%s** is a type of:", target), "")
		for _, p := range parents {
			parts = append(parts, "   🔗 "+p)
		}
	} else {
		parts = append(parts, fmt.Sprintf("🎯 **%s** has no known parent types.", target))
	}

	confidence := 0.4
	if len(parents) > 0 {
		confidence = 0.8
	}
	return FormattedResponse{
		Answer:     strings.Join(parts, "\n"),
		Metadata:   map[string]any{"parent_count": len(parents), "parents": parents, "result_count": len(rows)},
		RawResults: rows,
		Confidence: confidence,
	}
}

func formatWhoCreated(rows []Row, entities []string) FormattedResponse {
	creators := labelsOf(rows, "creatorLabel", "creator")
	target := titleCase(firstOr(entities, "entity"))

	var parts []string
	if len(creators) > 0 {
		parts = append(parts, fmt.Sprintf("👤 **%s** was created/developed by:", target), "")
		for _, c := range creators {
			parts = append(parts, "   📝 "+c)
		}
	} else {
		parts = append(parts, fmt.Sprintf("👤 Creator of **%s** not identified.", target))
	}

	confidence := 0.3
	if len(creators) > 0 {
		confidence = 0.9
	}
	return FormattedResponse{
		Answer:     strings.Join(parts, "\n"),
		Metadata:   map[string]any{"creator_count": len(creators), "result_count": len(rows)},
		RawResults: rows,
		Confidence: confidence,
	}
}

func formatHowRelated(rows []Row, entities []string) FormattedResponse {
	a, b := "Entity 1", "Entity 2"
	if len(entities) >= 2 {
		a, b = titleCase(entities[0]), titleCase(entities[1])
	}

	var relations []string
	for _, r := range rows {
		if rel := cleanURI(str(r["relation"])); rel != "" {
			relations = append(relations, rel)
		}
	}
	relations = uniqueSorted(relations)

	var parts []string
	if len(relations) > 0 {
		parts = append(parts, fmt.Sprintf("🔗 **%s** and **%s** are related through:", a, b), "")
		for _, rel := range relations {
			parts = append(parts, fmt.Sprintf("   %s %s", RelationEmoji(rel), titleCase(rel)))
		}
	} else {
		parts = append(parts, fmt.Sprintf("🔗 No direct relation found between **%s** and **%s**.", a, b))
	}

	confidence := 0.2
	if len(relations) > 0 {
		confidence = 0.8
	}
	return FormattedResponse{
		Answer:     strings.Join(parts, "\n"),
		Metadata:   map[string]any{"relation_count": len(relations), "result_count": len(rows)},
		RawResults: rows,
		Confidence: confidence,
	}
}

func formatListByType(rows []Row, entities []string) FormattedResponse {
	typeName := titleCase(firstOr(entities, "entities"))
	names := labelsOf(rows, "label", "entity")

	var parts []string
	if len(names) > 0 {
		parts = append(parts, fmt.Sprintf("📂 **%ss** in the Knowledge Graph:", typeName), "")
		for i, n := range names {
			if i == maxListed {
				break
			}
			parts = append(parts, fmt.Sprintf("   %2d. %s", i+1, n))
		}
		if len(names) > maxListed {
			parts = append(parts, "", fmt.Sprintf("   ... and %d more %ss", len(names)-maxListed, strings.ToLower(typeName)))
		}
	} else {
		parts = append(parts, fmt.Sprintf("📂 No **%s** found.", typeName))
	}

	confidence := 0.3
	if len(names) > 0 {
		confidence = 0.9
	}
	return FormattedResponse{
		Answer:     strings.Join(parts, "\n"),
		Metadata:   map[string]any{"total_entities": len(names), "result_count": len(rows)},
		RawResults: rows,
		Confidence: confidence,
	}
}

func formatFindSimilar(rows []Row, entities []string) FormattedResponse {
	target := titleCase(firstOr(entities, "entity"))
	similar := labelsOf(rows, "similarLabel", "similar")

	var parts []string
	if len(similar) > 0 {
		parts = append(parts, fmt.Sprintf("🔍 **Entities similar to %s**:", target), "")
		for i, s := range similar {
			if i == maxSimilar {
				break
			}
			parts = append(parts, fmt.Sprintf("   %2d. %s", i+1, s))
		}
	} else {
		parts = append(parts, fmt.Sprintf("🔍 No entity similar to **%s** found.", target))
	}

	confidence := 0.3
	if len(similar) > 0 {
		confidence = 0.7
	}
	return FormattedResponse{
		Answer:     strings.Join(parts, "\n"),
		Metadata:   map[string]any{"similar_count": len(similar), "result_count": len(rows)},
		RawResults: rows,
		Confidence: confidence,
	}
}

func formatGeneric(rows []Row, queryType QueryType) FormattedResponse {
	parts := []string{fmt.Sprintf("📊 Results for %s:", queryType), ""}
	for i, r := range rows {
		if i == maxGenericRows {
			break
		}
		keys := make([]string, 0, len(r))
		for k := range r {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]string, len(keys))
		for j, k := range keys {
			fields[j] = fmt.Sprintf("%s: %s", k, str(r[k]))
		}
		parts = append(parts, fmt.Sprintf("   %d. %s", i+1, strings.Join(fields, ", ")))
	}
	return FormattedResponse{
		Answer:     strings.Join(parts, "\n"),
		Metadata:   map[string]any{"result_count": len(rows), "query_type": string(queryType)},
		RawResults: rows,
		Confidence: 0.5,
	}
}

// labelsOf collects the label column of rows, falling back to the
// title-cased local name of the IRI column. The result is sorted and unique.
func labelsOf(rows []Row, labelKey, iriKey string) []string {
	var out []string
	for _, r := range rows {
		if v, ok := r[labelKey]; ok {
			if s := str(v); s != "" && s != "N/A" {
				out = append(out, s)
				continue
			}
		}
		if v, ok := r[iriKey]; ok {
			if s := cleanURI(str(v)); s != "" {
				out = append(out, titleCase(s))
			}
		}
	}
	return uniqueSorted(out)
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func looksLikeIRI(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "urn:")
}

// displayValue shortens IRIs to their local name and leaves literals alone.
func displayValue(v any) string {
	s := str(v)
	if looksLikeIRI(s) {
		return cleanURI(s)
	}
	return s
}

// cleanURI returns the part after the last '#', else after the last '/'.
func cleanURI(s string) string {
	if i := strings.LastIndexByte(s, '#'); i >= 0 {
		return s[i+1:]
	}
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// titleCase turns "support_vector_machine" into "Support Vector Machine".
// Every letter following a non-letter is upper-cased and the others are
// lower-cased, so "k-means" becomes "K-Means".
func titleCase(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func firstOr(list []string, fallback string) string {
	if len(list) > 0 && list[0] != "" {
		return list[0]
	}
	return fallback
}
