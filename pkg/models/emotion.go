package models

// Emotion is a classified facial emotion label.
type Emotion string

// Emotion labels produced by the classification boundary.
const (
	EmotionNeutral    Emotion = "neutral"
	EmotionHappy      Emotion = "happy"
	EmotionSad        Emotion = "sad"
	EmotionAngry      Emotion = "angry"
	EmotionFear       Emotion = "fear"
	EmotionSurprise   Emotion = "surprise"
	EmotionDisgust    Emotion = "disgust"
	EmotionStressLow  Emotion = "stress_low"
	EmotionStressHigh Emotion = "stress_high"
	EmotionFatigue    Emotion = "fatigue"
)

// stressClass holds the labels counted as stress indicators when
// aggregating. Fatigue counts as stress for aggregation but has its
// own alert rule.
var stressClass = map[Emotion]bool{
	EmotionAngry:      true,
	EmotionFear:       true,
	EmotionSad:        true,
	EmotionDisgust:    true,
	EmotionStressHigh: true,
	EmotionFatigue:    true,
}

var allEmotions = map[Emotion]bool{
	EmotionNeutral:    true,
	EmotionHappy:      true,
	EmotionSad:        true,
	EmotionAngry:      true,
	EmotionFear:       true,
	EmotionSurprise:   true,
	EmotionDisgust:    true,
	EmotionStressLow:  true,
	EmotionStressHigh: true,
	EmotionFatigue:    true,
}

// IsStressClass reports whether the label is counted as a stress indicator.
func (e Emotion) IsStressClass() bool {
	return stressClass[e]
}

// IsFatigue reports whether the label feeds the fatigue alert rule.
func (e Emotion) IsFatigue() bool {
	return e == EmotionFatigue
}

// Valid reports whether the label is one of the known emotions.
func (e Emotion) Valid() bool {
	return allEmotions[e]
}

func (e Emotion) String() string {
	return string(e)
}
