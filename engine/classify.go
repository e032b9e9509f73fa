package engine

import (
	"strings"

	"github.com/okhara/stagecraft/types"
)

// LabelSet is a closed set of route labels with a documented default. It
// parses free-text classifier output deterministically: labels are probed
// in declaration order, first match wins, no match yields the default.
type LabelSet struct {
	labels []RouteLabel
	def    RouteLabel
	marker string
}

// NewLabelSet builds a label set. def must be one of labels. marker is the
// tag a classifier is prompted to emit in front of the label, e.g.
// "TYPE:" for outputs like "TYPE: SYNTAX".
func NewLabelSet(marker string, def RouteLabel, labels ...RouteLabel) (LabelSet, error) {
	if len(labels) == 0 {
		return LabelSet{}, types.NewError(types.ErrCodeClassificationAmbiguous, "empty label set")
	}
	found := false
	for _, l := range labels {
		if l == def {
			found = true
			break
		}
	}
	if !found {
		return LabelSet{}, types.NewErrorf(types.ErrCodeClassificationAmbiguous,
			"default %q not in label set", def)
	}
	cp := make([]RouteLabel, len(labels))
	copy(cp, labels)
	return LabelSet{labels: cp, def: def, marker: marker}, nil
}

// MustLabelSet is NewLabelSet for statically-declared sets.
func MustLabelSet(marker string, def RouteLabel, labels ...RouteLabel) LabelSet {
	s, err := NewLabelSet(marker, def, labels...)
	if err != nil {
		panic(err)
	}
	return s
}

// Default returns the set's fallback label.
func (s LabelSet) Default() RouteLabel { return s.def }

// Parse maps classifier free text onto the label set. For a set with a
// marker, only the full case-sensitive marker+label token matches
// ("TYPE: SYNTAX"); bare label mentions are probed only when the set
// has no marker. Labels are tried in declaration order, and no match
// yields the default.
func (s LabelSet) Parse(text string) RouteLabel {
	for _, l := range s.labels {
		if s.marker != "" && strings.Contains(text, s.marker+" "+string(l)) {
			return l
		}
	}
	for _, l := range s.labels {
		if s.marker == "" && strings.Contains(text, string(l)) {
			return l
		}
	}
	return s.def
}
