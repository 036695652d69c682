package retrieval

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// FormatDocuments renders documents as a markdown context block. It returns
// "" for no documents.
func FormatDocuments(docs []Document) string {
	if len(docs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("# Retrieved Context Documents\n\n")
	fmt.Fprintf(&b, "The following %d document(s) were retrieved from the knowledge base:\n\n", len(docs))

	for i, doc := range docs {
		fmt.Fprintf(&b, "## Document %d (Relevance: %.1f%%)\n", i+1, doc.Score*100)
		if len(doc.Metadata) > 0 {
			fmt.Fprintf(&b, "**Metadata:** %s\n", formatMetadata(doc.Metadata))
		}
		fmt.Fprintf(&b, "**Content:**\n%s\n\n", doc.Content)
		if i < len(docs)-1 {
			b.WriteString("---\n\n")
		}
	}
	return b.String()
}

// formatMetadata renders "k: v" pairs with keys in sorted order
func formatMetadata(meta map[string]any) string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+": "+formatValue(meta[k]))
	}
	return strings.Join(pairs, ", ")
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}
