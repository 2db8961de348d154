package avatar

import "strings"

var positiveWords = map[string]bool{
	"good": true, "great": true, "awesome": true, "love": true, "like": true,
	"thanks": true, "thank": true, "helpful": true, "excellent": true, "happy": true,
	"amazing": true, "cool": true, "nice": true, "interesting": true, "fun": true,
	"understand": true, "clear": true, "excited": true, "perfect": true, "enjoy": true,
}

var negativeWords = map[string]bool{
	"bad": true, "hate": true, "confused": true, "confusing": true, "hard": true,
	"difficult": true, "boring": true, "frustrated": true, "frustrating": true, "stuck": true,
	"sad": true, "annoyed": true, "terrible": true, "awful": true, "lost": true,
	"discouraged": true, "tired": true, "wrong": true, "stupid": true, "worried": true,
}

var negators = map[string]bool{
	"not": true, "no": true, "never": true, "don't": true, "dont": true,
	"isn't": true, "isnt": true, "can't": true, "cant": true, "doesn't": true,
}

// ScoreSentiment returns (pos-neg)/(pos+neg) over lexicon hits, in [-1, 1].
// A negator flips the polarity of the next sentiment word.
func ScoreSentiment(text string) float64 {
	var pos, neg int
	flip := false
	for _, w := range strings.Fields(normalize(text)) {
		if negators[w] {
			flip = true
			continue
		}
		p, n := positiveWords[w], negativeWords[w]
		if !p && !n {
			continue
		}
		if flip {
			p, n = n, p
			flip = false
		}
		if p {
			pos++
		} else {
			neg++
		}
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}
