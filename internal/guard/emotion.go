package guard

import (
	"context"
	"fmt"
	"math"
)

// The seven emotion dimensions, in vector order.
var emotionOrder = []string{"joy", "sadness", "anger", "fear", "surprise", "disgust", "neutral"}

const (
	emotionDeltaThreshold = 0.7
	baseNeutral           = 0.3
)

// emotionKeywords drives the keyword-frequency classifier. Deliberately
// broad lists; a single match per word per category.
var emotionKeywords = map[string][]string{
	"joy": {
		"happy", "joy", "joyful", "glad", "cheerful", "delighted", "pleased",
		"excited", "thrilled", "elated", "content", "satisfied", "blissful",
		"ecstatic", "euphoric", "jubilant", "merry", "upbeat", "positive",
		"wonderful", "amazing", "fantastic", "great", "excellent", "brilliant",
		"smile", "smiling", "laugh", "laughing", "celebration", "celebrate",
	},
	"sadness": {
		"sad", "sadness", "sorrow", "grief", "melancholy", "depressed",
		"gloomy", "miserable", "dejected", "despondent", "downcast", "blue",
		"heartbroken", "mournful", "somber", "sorrowful", "forlorn", "glum",
		"crying", "cry", "tears", "weep", "weeping", "sob", "sobbing",
		"disappointed", "regret", "loss", "lost", "lonely",
	},
	"anger": {
		"angry", "anger", "mad", "furious", "rage", "enraged", "livid",
		"irate", "wrathful", "outraged", "incensed", "indignant", "hostile",
		"annoyed", "irritated", "frustrated", "aggravated", "infuriated",
		"resentful", "bitter", "hatred", "hate", "loathe", "despise",
		"fight", "fighting", "attack", "violent", "aggressive", "confrontation",
	},
	"fear": {
		"fear", "afraid", "scared", "frightened", "terrified", "horrified",
		"panicked", "anxious", "worried", "nervous", "apprehensive", "uneasy",
		"alarmed", "startled", "petrified", "dread", "dreading", "phobia",
		"paranoid", "timid", "cowardly", "trembling", "shaking", "horror",
		"terror", "nightmare", "threat", "threatening", "danger", "dangerous",
	},
	"surprise": {
		"surprised", "surprise", "amazed", "astonished", "astounded",
		"stunned", "shocked", "startled", "bewildered", "perplexed",
		"confused", "puzzled", "baffled", "flabbergasted", "speechless",
		"unexpected", "sudden", "suddenly", "wow", "whoa", "incredible",
		"unbelievable", "remarkable", "extraordinary", "strange", "odd",
		"curious", "mystery", "mysterious", "wonder", "wondering",
	},
	"disgust": {
		"disgusted", "disgust", "revolted", "repulsed", "nauseated", "sick",
		"sickening", "gross", "nasty", "foul", "vile", "repugnant",
		"loathsome", "abhorrent", "detestable", "offensive", "appalling",
		"horrible", "awful", "terrible", "dreadful", "hideous", "ugly",
		"repulsive", "contempt", "contemptuous", "scorn", "disdain", "revulsion",
	},
	"neutral": {
		"normal", "ordinary", "usual", "typical", "regular", "standard",
		"common", "average", "routine", "everyday", "plain", "simple",
		"calm", "peaceful", "quiet", "still", "steady", "stable", "balanced",
		"neutral", "indifferent", "detached", "objective", "factual",
	},
}

// keywordIndex maps word -> emotions it belongs to, built once at init.
var keywordIndex = func() map[string][]string {
	idx := make(map[string][]string)
	for _, emotion := range emotionOrder {
		for _, kw := range emotionKeywords[emotion] {
			idx[kw] = append(idx[kw], emotion)
		}
	}
	return idx
}()

// ClassifyEmotions scores a text span on the seven emotion dimensions.
// Scores are keyword frequency scaled by 5 and capped at 0.8, with a
// neutral floor of 0.3 and small cross-emotion bleed so profiles stay
// realistic. A span with no matched keywords collapses to pure neutral.
func ClassifyEmotions(text string) map[string]float64 {
	scores := make(map[string]float64, len(emotionOrder))
	for _, e := range emotionOrder {
		scores[e] = 0.0
	}

	words := tokenize(text)
	if len(words) == 0 {
		return scores
	}

	counts := make(map[string]int, len(emotionOrder))
	for _, w := range words {
		for _, emotion := range keywordIndex[w] {
			counts[emotion]++
		}
	}

	total := float64(len(words))
	for emotion, count := range counts {
		scores[emotion] = math.Min(float64(count)/total*5, 0.8)
	}

	// Neutral floor prevents degenerate one-hot vectors.
	scores["neutral"] = math.Max(scores["neutral"], baseNeutral)

	emotionalSum := 0.0
	for _, e := range emotionOrder {
		if e != "neutral" {
			emotionalSum += scores[e]
		}
	}
	if emotionalSum == 0 {
		for _, e := range emotionOrder {
			scores[e] = 0.0
		}
		scores["neutral"] = 1.0
		return scores
	}

	// Cross-emotion bleed: related emotions leak into each other.
	smoothed := make(map[string]float64, len(scores))
	for k, v := range scores {
		smoothed[k] = v
	}
	if scores["joy"] > 0 {
		smoothed["surprise"] += scores["joy"] * 0.1
	}
	if scores["sadness"] > 0 {
		smoothed["fear"] += scores["sadness"] * 0.1
	}
	if scores["anger"] > 0 {
		smoothed["fear"] += scores["anger"] * 0.05
		smoothed["disgust"] += scores["anger"] * 0.05
	}
	if scores["fear"] > 0 {
		smoothed["sadness"] += scores["fear"] * 0.1
	}
	for _, e := range emotionOrder {
		smoothed[e] = math.Min(smoothed[e], 1.0)
	}
	return smoothed
}

// EmotionVector converts a score map to the fixed-order 7-vector.
func EmotionVector(scores map[string]float64) [7]float64 {
	var v [7]float64
	for i, e := range emotionOrder {
		v[i] = scores[e]
	}
	return v
}

// CosineDelta returns 1 − cosineSimilarity, clamped into [0,2].
// Zero vectors yield 0: no signal is treated as no change.
func CosineDelta(a, b [7]float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0.0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	sim = math.Max(-1.0, math.Min(1.0, sim))
	return 1 - sim
}

// EmotionDelta computes the transition delta between two spans, with the
// neutral-jump amplification: cosine similarity underestimates the size
// of a neutral-to-strong-emotion jump, so that case is boosted x1.2.
func EmotionDelta(prevText, currText string) float64 {
	prev := ClassifyEmotions(prevText)
	curr := ClassifyEmotions(currText)

	delta := CosineDelta(EmotionVector(prev), EmotionVector(curr))

	prevMax, currMax := 0.0, 0.0
	for _, e := range emotionOrder {
		if e == "neutral" {
			continue
		}
		prevMax = math.Max(prevMax, prev[e])
		currMax = math.Max(currMax, curr[e])
	}

	prevNeutral := prev["neutral"] > 0.8
	currNeutral := curr["neutral"] > 0.8
	if (prevNeutral && currMax > 0.6) || (currNeutral && prevMax > 0.6) {
		if math.Abs(prevMax-currMax) > 0.5 {
			delta = math.Min(delta*1.2, 2.0)
		}
	}
	return delta
}

// EmotionGuard detects abrupt emotional transitions between the previous
// and current text spans.
type EmotionGuard struct{}

// NewEmotionGuard builds the emotion guard; it holds no state.
func NewEmotionGuard(Deps) Guard { return &EmotionGuard{} }

func (g *EmotionGuard) Name() string  { return "emotion_guard" }
func (g *EmotionGuard) Kind() ArgKind { return KindSpanPair }

func (g *EmotionGuard) Check(_ context.Context, in *Input) (*Result, error) {
	delta := EmotionDelta(in.PrevText, in.Text)

	if delta > emotionDeltaThreshold {
		flags := map[string]any{
			"emotion_jump": map[string]any{
				"value":     delta,
				"threshold": emotionDeltaThreshold,
				"message":   fmt.Sprintf("Emotion delta %.3f exceeds threshold %.1f", delta, emotionDeltaThreshold),
			},
		}
		return nil, NewViolation(g.Name(), "Emotion jump", flags)
	}

	return pass(g.Name(), map[string]any{
		"emotion_delta": delta,
		"prev_emotions": ClassifyEmotions(in.PrevText),
		"curr_emotions": ClassifyEmotions(in.Text),
	}), nil
}
