package avatar

import (
	"strings"
	"unicode"
)

const (
	lowEngagement  = 0.4
	defaultTopic   = "general knowledge"
	maxTopicLength = 120
)

// Intent is the routing decision for one user message.
type Intent struct {
	Rule  string
	Agent AgentType
	// Lead is the phrase that matched, used to cut the topic out of the text.
	Lead string
}

type intentRule struct {
	name    string
	agent   AgentType
	phrases []string
	when    func(*Context) bool
}

// intentRules is evaluated top to bottom; the first match wins.
var intentRules = []intentRule{
	{
		name:    "quiz",
		agent:   AgentQuiz,
		phrases: []string{"give me a quiz", "ask me questions", "quiz me", "test me", "quiz"},
	},
	{
		name:    "explain",
		agent:   AgentTutor,
		phrases: []string{"tell me about", "what is", "how does", "teach me", "explain"},
	},
	{
		name:    "find",
		agent:   AgentContentCurator,
		phrases: []string{"search for", "show me", "recommend", "suggest", "find"},
	},
	{
		name:    "motivation",
		agent:   AgentMotivational,
		phrases: []string{"feeling down", "discouraged", "motivate me", "give up", "frustrated"},
		when:    func(c *Context) bool { return c != nil && c.EngagementScore < lowEngagement },
	},
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\''
}

func tokens(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool { return !isWordRune(r) })
}

// normalize lowercases text and joins its words with single spaces, padded
// so phrase matches are word-bounded.
func normalize(text string) string {
	return " " + strings.ToLower(strings.Join(tokens(text), " ")) + " "
}

func DetectIntent(text string, c *Context) Intent {
	norm := normalize(text)
	for _, rule := range intentRules {
		for _, p := range rule.phrases {
			if strings.Contains(norm, " "+p+" ") {
				return Intent{Rule: rule.name, Agent: rule.agent, Lead: p}
			}
		}
		if rule.when != nil && rule.when(c) {
			return Intent{Rule: rule.name, Agent: rule.agent}
		}
	}
	return Intent{Rule: "default", Agent: AgentTutor}
}

// fillers are dropped from the front of an extracted topic.
var fillers = map[string]bool{
	"on": true, "about": true, "for": true, "regarding": true,
	"me": true, "a": true, "some": true,
}

// ExtractTopic returns what follows lead in text, minus connectors and
// trailing punctuation. Without a usable remainder it falls back to
// fallback and then to "general knowledge".
func ExtractTopic(text, lead, fallback string) string {
	if topic := topicAfter(text, lead); topic != "" {
		return topic
	}
	if f := strings.TrimSpace(fallback); f != "" {
		return f
	}
	return defaultTopic
}

func topicAfter(text, lead string) string {
	if lead == "" {
		return ""
	}
	words := tokens(text)
	leadWords := strings.Fields(lead)
	start := -1
	for i := 0; i+len(leadWords) <= len(words); i++ {
		match := true
		for j, w := range leadWords {
			if !strings.EqualFold(words[i+j], w) {
				match = false
				break
			}
		}
		if match {
			start = i + len(leadWords)
			break
		}
	}
	if start < 0 {
		return ""
	}
	rest := words[start:]
	for len(rest) > 0 && fillers[strings.ToLower(rest[0])] {
		rest = rest[1:]
	}
	topic := strings.Trim(strings.Join(rest, " "), "'")
	if len(topic) > maxTopicLength {
		topic = strings.TrimSpace(topic[:maxTopicLength])
	}
	return topic
}
