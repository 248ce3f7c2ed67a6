package embedding

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"net/url"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/danielpatrickdp/behavior-twin/internal/activity"
)

// #region weights

const (
	wIntentToken  = 0.8
	wIntentMode   = 0.9
	wContextToken = 0.6
	wAppToken     = 0.5
	wAppExe       = 1.0
)

// #endregion weights

// #region build

// Build maps a record to its embedding. It is deterministic and never fails:
// missing fields leave their sub-vector at zero, missing scores fall back to the
// neutral values DeriveSignals produces.
func Build(rec activity.Record) Vector {
	v, _ := BuildWithSignals(rec)
	return v
}

// BuildWithSignals is Build plus the interpretable signals it was derived from.
func BuildWithSignals(rec activity.Record) (Vector, activity.Signals) {
	sig := activity.DeriveSignals(rec)
	var acc [Dimension]float64

	for _, tok := range sig.Tokens {
		addToken(&acc, SegIntent, tok, wIntentToken)
		if strings.HasPrefix(tok, "http") {
			addToken(&acc, SegAppContext, tok, wContextToken)
		}
		addToken(&acc, SegAppSemantics, tok, wAppToken)
	}
	addToken(&acc, SegIntent, "mode:"+sig.Mode, wIntentMode)

	if sig.Exe != "" {
		addToken(&acc, SegAppSemantics, sig.Exe, wAppExe)
	}
	if host := urlHost(rec.URL); host != "" {
		addToken(&acc, SegAppContext, "host:"+host, wContextToken)
	}
	for _, label := range rec.UIALabels {
		if l := strings.ToLower(strings.TrimSpace(label)); l != "" {
			addToken(&acc, SegAppContext, l, wContextToken)
		}
	}

	// Cognitive: heavy tokens weighted by load, plus a coarse load level so that
	// records without heavy tokens still differ by measured load.
	cogWeight := 1.0 + sig.CognitiveLoad
	for _, tok := range sig.Tokens {
		if activity.IsCognitiveHeavy(tok) {
			addToken(&acc, SegCognitive, tok, cogWeight)
		}
	}
	addToken(&acc, SegCognitive, "load:"+strconv.Itoa(int(math.Round(sig.CognitiveLoad*10))), sig.CognitiveLoad)

	addToken(&acc, SegEmotional, "positive", sig.EmotionalTone)
	addToken(&acc, SegEmotional, "negative", 1-sig.EmotionalTone)

	addToken(&acc, SegDopamineGoal, "dopamine", sig.DopamineScore)
	addToken(&acc, SegDopamineGoal, "goal", sig.GoalScore)

	s := acc[:]
	if norm := floats.Norm(s, 2); norm > 0 {
		floats.Scale(1/norm, s)
	}

	var out Vector
	for i, x := range acc {
		out[i] = float32(x)
	}
	return out, sig
}

// #endregion build

// #region hashing

// Slot returns the in-segment index a token hashes to.
func Slot(segment int, token string) int {
	sum := sha256.Sum256([]byte(strconv.Itoa(segment) + ":" + token))
	return int(binary.BigEndian.Uint32(sum[:4]) % SegmentSize)
}

func addToken(acc *[Dimension]float64, segment int, token string, weight float64) {
	if weight == 0 || math.IsNaN(weight) {
		return
	}
	acc[segment*SegmentSize+Slot(segment, token)] += weight
}

// #endregion hashing

// #region helpers

func urlHost(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// Float64 widens a vector for numeric routines.
func (v Vector) Float64() []float64 {
	out := make([]float64, Dimension)
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// Segment returns a copy of the named segment's values.
func (v Vector) Segment(seg int) []float32 {
	out := make([]float32, SegmentSize)
	copy(out, v[seg*SegmentSize:(seg+1)*SegmentSize])
	return out
}

// #endregion helpers
