package retrieval

import "strings"

// ScoreRelevance buckets the share of whitespace-separated query terms that
// occur anywhere in text.
func ScoreRelevance(query, text string) RelevanceLevel {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return Unrelated
	}
	t := strings.ToLower(text)
	if strings.Contains(t, q) {
		return High
	}
	ts := strings.Fields(q)
	found := 0
	for _, term := range ts {
		if strings.Contains(t, term) {
			found++
		}
	}
	ratio := float64(found) / float64(len(ts))
	switch {
	case ratio >= 0.8:
		return High
	case ratio >= 0.5:
		return Medium
	case ratio > 0:
		return Low
	}
	return Unrelated
}

func itemText(it Item) string {
	parts := []string{it.Title, it.Description, it.Author}
	if topics, ok := it.Metadata["topics"].([]string); ok {
		parts = append(parts, topics...)
	}
	return strings.Join(parts, " ")
}
