package classroom

import (
	"encoding/json"
	"fmt"
	"strings"
)

func strOr(v any, def string) string {
	if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	return def
}

func intFrom(v any, def int) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return def
		}
		return int(i)
	default:
		return def
	}
}

func floatFrom(v any, def float64) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return def
		}
		return f
	default:
		return def
	}
}

func stringsFrom(v any) []string {
	var raw []any
	switch t := v.(type) {
	case []string:
		for _, s := range t {
			raw = append(raw, s)
		}
	case []any:
		raw = t
	default:
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		k := strings.ToLower(s)
		if s == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}

func parseQuestion(raw any, d Difficulty) (QuizQuestion, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return QuizQuestion{}, false
	}
	text := strOr(m["text"], "")
	opts := stringsFrom(m["options"])
	idx := intFrom(m["correct_index"], -1)
	if text == "" || len(opts) < 2 || idx < 0 || idx >= len(opts) {
		return QuizQuestion{}, false
	}
	return QuizQuestion{
		ID:           newID("question", 8),
		Text:         text,
		Options:      opts,
		CorrectIndex: idx,
		Explanation:  strOr(m["explanation"], ""),
		Difficulty:   d,
	}, true
}

func parseQuestions(v any, d Difficulty, limit int) []QuizQuestion {
	list, _ := v.([]any)
	out := make([]QuizQuestion, 0, len(list))
	for _, raw := range list {
		if len(out) >= limit {
			break
		}
		if q, ok := parseQuestion(raw, d); ok {
			out = append(out, q)
		}
	}
	return out
}

func parseSections(v any) []section {
	list, _ := v.([]any)
	out := make([]section, 0, len(list))
	for _, raw := range list {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		title := strOr(m["title"], "")
		if title == "" {
			continue
		}
		kinds := stringsFrom(m["element_kinds"])
		if len(kinds) == 0 {
			kinds = []string{string(KindText)}
		}
		out = append(out, section{title: title, kinds: kinds})
	}
	return out
}

func parseSteps(v any, level Difficulty) []PathwayStep {
	list, _ := v.([]any)
	out := make([]PathwayStep, 0, len(list))
	for _, raw := range list {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		topic := strOr(m["topic"], "")
		if topic == "" {
			continue
		}
		d := level
		if ds := strOr(m["difficulty"], ""); ds != "" {
			d = ParseDifficulty(ds)
		}
		hours := floatFrom(m["estimated_hours"], 1)
		if hours <= 0 {
			hours = 1
		}
		out = append(out, PathwayStep{
			Topic:          topic,
			Description:    strOr(m["description"], ""),
			Difficulty:     d,
			EstimatedHours: hours,
			Addresses:      stringsFrom(m["addresses"]),
		})
	}
	return out
}

func checkQuiz(obj map[string]any) []string {
	list, _ := obj["questions"].([]any)
	for _, raw := range list {
		if _, ok := parseQuestion(raw, Beginner); ok {
			return nil
		}
	}
	return []string{"no valid questions: each needs text, at least 2 options and correct_index within options"}
}

func checkOutline(obj map[string]any) []string {
	if len(parseSections(obj["sections"])) == 0 {
		return []string{"sections: at least one titled section required"}
	}
	return nil
}

func checkElements(obj map[string]any) []string {
	list, _ := obj["elements"].([]any)
	if len(list) == 0 {
		return []string{"elements: at least one element required"}
	}
	return nil
}

func checkCurriculum(obj map[string]any) []string {
	list, _ := obj["modules"].([]any)
	var errs []string
	if len(list) == 0 {
		errs = append(errs, "modules: at least one module required")
	}
	for i, raw := range list {
		m, _ := raw.(map[string]any)
		if strOr(m["title"], "") == "" {
			errs = append(errs, fmt.Sprintf("modules[%d].title: required", i))
		}
	}
	return errs
}

func checkPathway(obj map[string]any) []string {
	if len(parseSteps(obj["steps"], Beginner)) == 0 {
		return []string{"steps: at least one step with a topic required"}
	}
	return nil
}
