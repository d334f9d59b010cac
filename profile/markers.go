// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package profile // import "go.opentelemetry.io/profile-viewer/profile"

import (
	"fmt"

	"go.opentelemetry.io/profile-viewer/internal/rawjson"
)

// MarkerType is the value of the "type" field of a marker payload.
type MarkerType string

const (
	MarkerTypeGCMinor       MarkerType = "GCMinor"
	MarkerTypeGCMajor       MarkerType = "GCMajor"
	MarkerTypeGCSlice       MarkerType = "GCSlice"
	MarkerTypeUserTiming    MarkerType = "UserTiming"
	MarkerTypeDOMEvent      MarkerType = "DOMEvent"
	MarkerTypeStyles        MarkerType = "Styles"
	MarkerTypeBailout       MarkerType = "Bailout"
	MarkerTypeInvalidation  MarkerType = "Invalidation"
	MarkerTypeTracing       MarkerType = "tracing"
	MarkerTypeGPU           MarkerType = "gpu_timer_query"
	MarkerTypeDummyForTests MarkerType = "DummyForTests"
)

// MarkerPayload is the closed set of structured marker payloads. Consumers switch
// over the concrete types.
type MarkerPayload interface {
	Type() MarkerType
	isMarkerPayload()
}

// TimeSpan is embedded by payloads that carry their own start and end.
type TimeSpan struct {
	StartTime float64
	EndTime   float64
}

type GCMinorPayload struct {
	TimeSpan
	// Nursery is kept as decoded JSON, its shape differs between versions.
	Nursery map[string]any
}

type GCMajorPayload struct {
	TimeSpan
	Timings map[string]any
}

type GCSlicePayload struct {
	TimeSpan
	Timings map[string]any
}

type UserTimingPayload struct {
	TimeSpan
	Name      string
	EntryType string
}

type DOMEventPayload struct {
	TimeSpan
	TimeStamp float64
	EventType string
	Phase     int
}

type StylePayload struct {
	TimeSpan
	Category          string
	ElementsTraversed int
	ElementsStyled    int
	ElementsMatched   int
	StylesShared      int
	StylesReused      int
}

type BailoutPayload struct {
	TimeSpan
	BailoutType  string
	Where        string
	Script       string
	BailoutLine  int
	FunctionLine int
}

type InvalidationPayload struct {
	TimeSpan
	URL  string
	Line string
}

// TracingPayload is one half of a start/end marker pair.
type TracingPayload struct {
	Category string
	// Interval is either "start" or "end".
	Interval  string
	EventType string
	Phase     int
	TimeStamp float64
}

type GPUPayload struct {
	TimeSpan
	CPUStart float64
	CPUEnd   float64
	GPUStart float64
	GPUEnd   float64
}

type DummyPayload struct {
	TimeSpan
}

// UnknownPayload preserves payloads whose type this package doesn't know about.
type UnknownPayload struct {
	TypeName string
	Raw      map[string]any
}

func (GCMinorPayload) Type() MarkerType      { return MarkerTypeGCMinor }
func (GCMajorPayload) Type() MarkerType      { return MarkerTypeGCMajor }
func (GCSlicePayload) Type() MarkerType      { return MarkerTypeGCSlice }
func (UserTimingPayload) Type() MarkerType   { return MarkerTypeUserTiming }
func (DOMEventPayload) Type() MarkerType     { return MarkerTypeDOMEvent }
func (StylePayload) Type() MarkerType        { return MarkerTypeStyles }
func (BailoutPayload) Type() MarkerType      { return MarkerTypeBailout }
func (InvalidationPayload) Type() MarkerType { return MarkerTypeInvalidation }
func (TracingPayload) Type() MarkerType      { return MarkerTypeTracing }
func (GPUPayload) Type() MarkerType          { return MarkerTypeGPU }
func (DummyPayload) Type() MarkerType        { return MarkerTypeDummyForTests }
func (p UnknownPayload) Type() MarkerType    { return MarkerType(p.TypeName) }

func (GCMinorPayload) isMarkerPayload()      {}
func (GCMajorPayload) isMarkerPayload()      {}
func (GCSlicePayload) isMarkerPayload()      {}
func (UserTimingPayload) isMarkerPayload()   {}
func (DOMEventPayload) isMarkerPayload()     {}
func (StylePayload) isMarkerPayload()        {}
func (BailoutPayload) isMarkerPayload()      {}
func (InvalidationPayload) isMarkerPayload() {}
func (TracingPayload) isMarkerPayload()      {}
func (GPUPayload) isMarkerPayload()          {}
func (DummyPayload) isMarkerPayload()        {}
func (UnknownPayload) isMarkerPayload()      {}

// PayloadSpan returns the start and end time carried by a payload. Tracing and
// unknown payloads don't carry a span.
func PayloadSpan(p MarkerPayload) (TimeSpan, bool) {
	switch v := p.(type) {
	case GCMinorPayload:
		return v.TimeSpan, true
	case GCMajorPayload:
		return v.TimeSpan, true
	case GCSlicePayload:
		return v.TimeSpan, true
	case UserTimingPayload:
		return v.TimeSpan, true
	case DOMEventPayload:
		return v.TimeSpan, true
	case StylePayload:
		return v.TimeSpan, true
	case BailoutPayload:
		return v.TimeSpan, true
	case InvalidationPayload:
		return v.TimeSpan, true
	case GPUPayload:
		return v.TimeSpan, true
	case DummyPayload:
		return v.TimeSpan, true
	case TracingPayload, UnknownPayload, nil:
		return TimeSpan{}, false
	default:
		panic(fmt.Sprintf("unhandled marker payload %T", p))
	}
}

func parseSpan(raw map[string]any) TimeSpan {
	return TimeSpan{
		StartTime: rawjson.FloatOr(raw, "startTime", 0),
		EndTime:   rawjson.FloatOr(raw, "endTime", 0),
	}
}

// ParseMarkerPayload converts a decoded JSON payload into its typed form.
// A nil input yields a nil payload.
func ParseMarkerPayload(raw map[string]any) (MarkerPayload, error) {
	if raw == nil {
		return nil, nil
	}
	typ, ok := rawjson.String(raw, "type")
	if !ok {
		return nil, fmt.Errorf("marker payload without type: %v", raw)
	}
	span := parseSpan(raw)
	switch MarkerType(typ) {
	case MarkerTypeGCMinor:
		nursery, _ := rawjson.Obj(raw, "nursery")
		return GCMinorPayload{TimeSpan: span, Nursery: nursery}, nil
	case MarkerTypeGCMajor:
		timings, _ := rawjson.Obj(raw, "timings")
		return GCMajorPayload{TimeSpan: span, Timings: timings}, nil
	case MarkerTypeGCSlice:
		timings, _ := rawjson.Obj(raw, "timings")
		return GCSlicePayload{TimeSpan: span, Timings: timings}, nil
	case MarkerTypeUserTiming:
		return UserTimingPayload{
			TimeSpan:  span,
			Name:      rawjson.StringOr(raw, "name", ""),
			EntryType: rawjson.StringOr(raw, "entryType", ""),
		}, nil
	case MarkerTypeDOMEvent:
		return DOMEventPayload{
			TimeSpan:  span,
			TimeStamp: rawjson.FloatOr(raw, "timeStamp", 0),
			EventType: rawjson.StringOr(raw, "eventType", ""),
			Phase:     rawjson.IntOr(raw, "phase", 0),
		}, nil
	case MarkerTypeStyles:
		return StylePayload{
			TimeSpan:          span,
			Category:          rawjson.StringOr(raw, "category", ""),
			ElementsTraversed: rawjson.IntOr(raw, "elementsTraversed", 0),
			ElementsStyled:    rawjson.IntOr(raw, "elementsStyled", 0),
			ElementsMatched:   rawjson.IntOr(raw, "elementsMatched", 0),
			StylesShared:      rawjson.IntOr(raw, "stylesShared", 0),
			StylesReused:      rawjson.IntOr(raw, "stylesReused", 0),
		}, nil
	case MarkerTypeBailout:
		return BailoutPayload{
			TimeSpan:     span,
			BailoutType:  rawjson.StringOr(raw, "bailoutType", ""),
			Where:        rawjson.StringOr(raw, "where", ""),
			Script:       rawjson.StringOr(raw, "script", ""),
			BailoutLine:  rawjson.IntOr(raw, "bailoutLine", 0),
			FunctionLine: rawjson.IntOr(raw, "functionLine", 0),
		}, nil
	case MarkerTypeInvalidation:
		return InvalidationPayload{
			TimeSpan: span,
			URL:      rawjson.StringOr(raw, "url", ""),
			Line:     rawjson.StringOr(raw, "line", ""),
		}, nil
	case MarkerTypeTracing:
		return TracingPayload{
			Category:  rawjson.StringOr(raw, "category", ""),
			Interval:  rawjson.StringOr(raw, "interval", ""),
			EventType: rawjson.StringOr(raw, "eventType", ""),
			Phase:     rawjson.IntOr(raw, "phase", 0),
			TimeStamp: rawjson.FloatOr(raw, "timeStamp", 0),
		}, nil
	case MarkerTypeGPU:
		return GPUPayload{
			TimeSpan: span,
			CPUStart: rawjson.FloatOr(raw, "cpustart", 0),
			CPUEnd:   rawjson.FloatOr(raw, "cpuend", 0),
			GPUStart: rawjson.FloatOr(raw, "gpustart", 0),
			GPUEnd:   rawjson.FloatOr(raw, "gpuend", 0),
		}, nil
	case MarkerTypeDummyForTests:
		return DummyPayload{TimeSpan: span}, nil
	default:
		return UnknownPayload{TypeName: typ, Raw: raw}, nil
	}
}

// ShiftPayload returns p with its start and end time moved by delta.
func ShiftPayload(p MarkerPayload, delta float64) MarkerPayload {
	if delta == 0 {
		return p
	}
	shift := func(s TimeSpan) TimeSpan {
		return TimeSpan{StartTime: s.StartTime + delta, EndTime: s.EndTime + delta}
	}
	switch v := p.(type) {
	case GCMinorPayload:
		v.TimeSpan = shift(v.TimeSpan)
		return v
	case GCMajorPayload:
		v.TimeSpan = shift(v.TimeSpan)
		return v
	case GCSlicePayload:
		v.TimeSpan = shift(v.TimeSpan)
		return v
	case UserTimingPayload:
		v.TimeSpan = shift(v.TimeSpan)
		return v
	case DOMEventPayload:
		v.TimeSpan = shift(v.TimeSpan)
		return v
	case StylePayload:
		v.TimeSpan = shift(v.TimeSpan)
		return v
	case BailoutPayload:
		v.TimeSpan = shift(v.TimeSpan)
		return v
	case InvalidationPayload:
		v.TimeSpan = shift(v.TimeSpan)
		return v
	case GPUPayload:
		v.TimeSpan = shift(v.TimeSpan)
		return v
	case DummyPayload:
		v.TimeSpan = shift(v.TimeSpan)
		return v
	case TracingPayload, UnknownPayload, nil:
		return p
	default:
		panic(fmt.Sprintf("unhandled marker payload %T", p))
	}
}
