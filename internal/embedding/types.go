package embedding

// #region dimensions

const (
	// SegmentSize is the width of every named segment.
	SegmentSize = 128
	// Dimension is the fixed length of every embedding.
	Dimension = SegmentSize * 6
)

// Vector is the fixed-size fingerprint of one activity record.
type Vector [Dimension]float32

// #endregion dimensions

// #region segment-map

// Segment indexes, in layout order.
const (
	SegIntent = iota
	SegAppContext
	SegCognitive
	SegEmotional
	SegDopamineGoal
	SegAppSemantics
)

// SegmentMap defines named ranges within the 768-dimensional embedding.
type SegmentMap struct {
	Intent       [2]int `json:"intent"`        // [0, 128)
	AppContext   [2]int `json:"app_context"`   // [128, 256)
	Cognitive    [2]int `json:"cognitive"`     // [256, 384)
	Emotional    [2]int `json:"emotional"`     // [384, 512)
	DopamineGoal [2]int `json:"dopamine_goal"` // [512, 640)
	AppSemantics [2]int `json:"app_semantics"` // [640, 768)
}

// DefaultSegmentMap returns the standard 6-segment layout.
func DefaultSegmentMap() SegmentMap {
	r := func(seg int) [2]int { return [2]int{seg * SegmentSize, (seg + 1) * SegmentSize} }
	return SegmentMap{
		Intent:       r(SegIntent),
		AppContext:   r(SegAppContext),
		Cognitive:    r(SegCognitive),
		Emotional:    r(SegEmotional),
		DopamineGoal: r(SegDopamineGoal),
		AppSemantics: r(SegAppSemantics),
	}
}

// #endregion segment-map

// #region config

// Config holds embedding settings. Dimension is fixed; it is configurable only
// so that a misconfigured deployment is rejected at startup.
type Config struct {
	Dimension int `yaml:"dimension"`
}

// DefaultConfig returns the only valid embedding configuration.
func DefaultConfig() Config {
	return Config{Dimension: Dimension}
}

// #endregion config
