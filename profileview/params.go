// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package profileview // import "go.opentelemetry.io/profile-viewer/profileview"

import (
	"strconv"
	"strings"

	"go.opentelemetry.io/profile-viewer/profile"
	"go.opentelemetry.io/profile-viewer/transform"
)

// Params select the view of a thread. The zero value shows the whole thread
// unfiltered.
type Params struct {
	// Range is the committed time range, nil for the whole profile.
	Range *profile.StartEndRange
	// Search holds comma separated search terms.
	Search         string
	Implementation profile.Implementation
	Inverted       bool
	Transforms     []transform.Transform
	// Selection is a preview range within Range, nil for none.
	Selection *profile.StartEndRange
}

func rangeKey(r *profile.StartEndRange) string {
	if r == nil {
		return "all"
	}
	return strconv.FormatFloat(r.Start, 'g', -1, 64) + "_" +
		strconv.FormatFloat(r.End, 'g', -1, 64)
}

// stageKeys returns the cumulative memoization keys of the derivation stages
// range, transforms, implementation, search, invert and selection.
func (p Params) stageKeys() [numStages]string {
	var keys [numStages]string
	var b strings.Builder
	add := func(stage int, part string) {
		if stage > 0 {
			b.WriteByte('|')
		}
		b.WriteString(part)
		keys[stage] = b.String()
	}
	impl := p.Implementation
	if impl == "" {
		impl = profile.ImplementationCombined
	}
	add(stageRange, "r:"+rangeKey(p.Range))
	add(stageTransforms, "t:"+transform.StackKey(p.Transforms))
	add(stageImplementation, "i:"+string(impl))
	add(stageSearch, "s:"+strings.ToLower(p.Search))
	add(stageInvert, "v:"+strconv.FormatBool(p.Inverted))
	add(stageSelection, "p:"+rangeKey(p.Selection))
	return keys
}

// Key returns a string identifying the parameter combination.
func (p Params) Key() string {
	keys := p.stageKeys()
	return keys[numStages-1]
}

// markerKey identifies the marker list of a parameter combination.
func (p Params) markerKey() string {
	return "r:" + rangeKey(p.Range) + "|p:" + rangeKey(p.Selection)
}
