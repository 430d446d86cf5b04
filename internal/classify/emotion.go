package classify

import "strings"

// Emotion is a coarse sentiment label attached to turn metadata. It
// never influences routing or prompting, only observability.
type Emotion struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

var emotionKeywords = map[string][]string{
	"excited":    {"genial", "me encanta", "qué ganas", "awesome", "can't wait", "brutal", "increíble"},
	"frustrated": {"no funciona", "otra vez", "fatal", "harto", "harta", "useless", "annoying", "no me sirve"},
	"happy":      {"gracias", "perfecto", "estupendo", "thanks", "great", "moi ben"},
	"sad":        {"triste", "mal día", "sad", "deprimido", "deprimida"},
}

// DetectEmotion runs a keyword scan over the query. Longest keyword
// match wins, with confidence scaled by match length.
func DetectEmotion(query string) Emotion {
	lower := strings.ToLower(query)
	best := Emotion{Label: "neutral", Confidence: 0.5}
	bestLen := 0
	for label, keywords := range emotionKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) && len(kw) > bestLen {
				bestLen = len(kw)
				best = Emotion{Label: label, Confidence: 0.7}
			}
		}
	}
	return best
}
