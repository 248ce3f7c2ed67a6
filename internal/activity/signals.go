package activity

import (
	"math"
	"strings"
	"unicode"
)

// #region lexicons

var dopamineCues = map[string]struct{}{
	"tiktok": {}, "youtube": {}, "bilibili": {}, "netflix": {}, "game": {}, "gaming": {},
	"steam": {}, "browsing": {}, "scroll": {}, "feed": {}, "reddit": {}, "twitter": {},
	"instagram": {}, "video": {}, "shorts": {}, "discord": {}, "chat": {}, "ai_chat": {},
}

var goalCues = map[string]struct{}{
	"code": {}, "coding": {}, "ide": {}, "vscode": {}, "work": {}, "project": {}, "write": {},
	"obsidian": {}, "notion": {}, "note": {}, "research": {}, "paper": {}, "doc": {}, "ppt": {},
	"excel": {}, "analysis": {}, "debug": {}, "terminal": {}, "reading": {},
}

var cognitiveHeavy = map[string]struct{}{
	"debug": {}, "compile": {}, "analysis": {}, "write": {}, "research": {}, "solve": {},
	"problem": {}, "refactor": {}, "review": {}, "deploy": {}, "ide": {}, "editor": {},
	"terminal": {}, "math": {}, "design": {}, "architecture": {},
}

var emotionalPositive = map[string]struct{}{
	"win": {}, "completed": {}, "success": {}, "achieved": {}, "great": {}, "good": {}, "yay": {}, "love": {},
}

var emotionalNegative = map[string]struct{}{
	"fail": {}, "error": {}, "lost": {}, "died": {}, "crash": {}, "stuck": {}, "boring": {},
	"bad": {}, "angry": {}, "sad": {},
}

// #endregion lexicons

// #region derive

// DeriveSignals computes interpretable scores from the record's text fields.
// Raw CognitiveLoad/EmotionalTone values on the record take precedence over
// the lexical estimates. Never fails; empty records yield neutral scores.
func DeriveSignals(rec Record) Signals {
	mode := NormalizeMode(rec.Mode)
	blob := strings.Join([]string{
		rec.Title, rec.Exe, rec.URL, strings.Join(rec.UIALabels, " "), rec.Summary, mode,
	}, " ")
	tokens := Tokenize(blob)

	var dopamine, goal, cog, pos, neg int
	for _, t := range tokens {
		if _, ok := dopamineCues[t]; ok {
			dopamine++
		}
		if _, ok := goalCues[t]; ok {
			goal++
		}
		if _, ok := cognitiveHeavy[t]; ok {
			cog++
		}
		if _, ok := emotionalPositive[t]; ok {
			pos++
		}
		if _, ok := emotionalNegative[t]; ok {
			neg++
		}
	}

	n := len(tokens)
	if n == 0 {
		n = 1
	}
	sig := Signals{
		Tokens:        tokens,
		DopamineScore: float64(dopamine) / float64(n),
		GoalScore:     float64(goal) / float64(n),
		CognitiveLoad: Clamp01(0.2 + float64(cog)*0.15),
		EmotionalTone: Clamp01(0.5 + float64(pos-neg)*0.05),
		Mode:          mode,
		Exe:           strings.ToLower(strings.TrimSpace(rec.Exe)),
	}
	if rec.CognitiveLoad != nil && isFinite(*rec.CognitiveLoad) {
		sig.CognitiveLoad = Clamp01(*rec.CognitiveLoad)
	}
	if rec.EmotionalTone != nil && isFinite(*rec.EmotionalTone) {
		sig.EmotionalTone = Clamp01(*rec.EmotionalTone)
	}
	return sig
}

// Productivity scores how goal-directed the signals look, in [0,1].
func (s Signals) Productivity() float64 {
	return Clamp01(s.GoalScore + 0.5*s.CognitiveLoad - 0.4*s.DopamineScore)
}

// Distraction is the dopamine-cue share, in [0,1].
func (s Signals) Distraction() float64 {
	return Clamp01(s.DopamineScore)
}

// #endregion derive

// #region helpers

// Tokenize lowercases text and splits on whitespace and path separators.
// Underscores split as well, so "ai_chat" contributes "ai" and "chat".
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return unicode.IsSpace(r) || r == '/' || r == '\\' || r == '_'
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// IsCognitiveHeavy reports whether tok names a cognitively demanding activity.
func IsCognitiveHeavy(tok string) bool {
	_, ok := cognitiveHeavy[tok]
	return ok
}

// NormalizeMode lowercases a mode label, mapping empty input to ModeUnknown.
func NormalizeMode(mode string) string {
	m := strings.ToLower(strings.TrimSpace(mode))
	if m == "" {
		return ModeUnknown
	}
	return m
}

// Clamp01 restricts v to [0, 1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// #endregion helpers
