package activity

import "time"

// #region modes

// Mode vocabulary assigned by the heuristic pre-classifier. Custom labels are
// allowed; anything empty normalises to ModeUnknown.
const (
	ModeCoding         = "coding"
	ModeGaming         = "gaming"
	ModeVideo          = "video"
	ModeChatting       = "chatting"
	ModeAIChat         = "ai_chat"
	ModeBrowsing       = "browsing"
	ModeReading        = "reading"
	ModeWriting        = "writing"
	ModeSystem         = "system"
	ModeFileManagement = "file_management"
	ModeIdle           = "idle"
	ModeUnknown        = "unknown"
)

// KnownModes lists the built-in vocabulary.
var KnownModes = []string{
	ModeCoding, ModeGaming, ModeVideo, ModeChatting, ModeAIChat, ModeBrowsing,
	ModeReading, ModeWriting, ModeSystem, ModeFileManagement, ModeIdle, ModeUnknown,
}

// #endregion modes

// #region record

// Record is one observed moment of user activity.
type Record struct {
	Timestamp  time.Time `json:"ts"`
	Exe        string    `json:"exe"`
	Title      string    `json:"title"`
	URL        string    `json:"url,omitempty"`
	Mode       string    `json:"mode"`
	Confidence float64   `json:"confidence"`
	Summary    string    `json:"summary,omitempty"`
	UIALabels  []string  `json:"uia_labels,omitempty"`

	// Raw signals from upstream collaborators. Nil means "not measured".
	CognitiveLoad *float64 `json:"cognitive_load,omitempty"`
	EmotionalTone *float64 `json:"emotional_tone,omitempty"`
}

// #endregion record

// #region signals

// Signals are interpretable scores derived from a record's text.
type Signals struct {
	Tokens        []string `json:"-"`
	DopamineScore float64  `json:"dopamine_score"` // share of tokens that are dopamine cues
	GoalScore     float64  `json:"goal_score"`     // share of tokens that are goal cues
	CognitiveLoad float64  `json:"cognitive_load"` // [0,1]
	EmotionalTone float64  `json:"emotional_tone"` // [0,1], 0.5 neutral
	Mode          string   `json:"mode"`
	Exe           string   `json:"exe"`
}

// #endregion signals
