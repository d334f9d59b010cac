// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package gecko // import "go.opentelemetry.io/profile-viewer/gecko"

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/profile-viewer/internal/rawjson"
	"go.opentelemetry.io/profile-viewer/metrics"
	"go.opentelemetry.io/profile-viewer/profile"
	"go.opentelemetry.io/profile-viewer/stringtable"
)

// Decode reads a JSON encoded gecko profile.
func Decode(r io.Reader) (map[string]any, error) {
	var raw map[string]any
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProfile, err)
	}
	if raw == nil {
		return nil, malformedf("profile is not a JSON object")
	}
	return raw, nil
}

// Load decodes, upgrades and processes a gecko profile. Nothing is returned
// on error.
func Load(r io.Reader) (*profile.Profile, error) {
	raw, err := Decode(r)
	if err != nil {
		return nil, err
	}
	from, err := Version(raw)
	if err != nil {
		return nil, err
	}
	if err := Upgrade(raw); err != nil {
		return nil, err
	}
	p, err := Process(raw)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"fromVersion": from,
		"threads":     len(p.Threads),
	}).Info("Loaded gecko profile")
	return p, nil
}

// Process converts a profile of version CurrentVersion into the processed
// format. The threads of all subprocesses are flattened into one list with
// their times shifted to the start time of the root process.
//
// Threads with inconsistent tables are dropped with a warning.
func Process(raw map[string]any) (*profile.Profile, error) {
	version, err := Version(raw)
	if err != nil {
		return nil, err
	}
	if version != CurrentVersion {
		return nil, fmt.Errorf("%w: processing requires version %d, got %d",
			ErrUnsupportedVersion, CurrentVersion, version)
	}
	meta, _ := rawjson.Obj(raw, "meta")
	rootStart := rawjson.FloatOr(meta, "startTime", 0)

	p := &profile.Profile{
		Meta: profile.Meta{
			Interval:     rawjson.FloatOr(meta, "interval", 1),
			StartTime:    rootStart,
			ShutdownTime: nullableFloat(meta["shutdownTime"]),
			Version:      CurrentVersion,
			ProcessType:  rawjson.IntOr(meta, "processType", 0),
			Product:      rawjson.StringOr(meta, "product", ""),
			Platform:     rawjson.StringOr(meta, "platform", ""),
			OSCPU:        rawjson.StringOr(meta, "oscpu", ""),
			ABI:          rawjson.StringOr(meta, "abi", ""),
			Categories:   processCategories(meta),
		},
	}
	if ranges, ok := rawjson.Array(raw, "pausedRanges"); ok {
		for _, r := range ranges {
			obj, ok := r.(map[string]any)
			if !ok {
				continue
			}
			p.PausedRanges = append(p.PausedRanges, profile.PausedRange{
				StartTime: nullableFloat(obj["startTime"]),
				EndTime:   nullableFloat(obj["endTime"]),
				Reason:    rawjson.StringOr(obj, "reason", ""),
			})
		}
	}

	err = forEachProcess(raw, func(proc object) error {
		procMeta, ok := rawjson.Obj(proc, "meta")
		if !ok {
			return malformedf("missing meta object")
		}
		delta := rawjson.FloatOr(procMeta, "startTime", rootStart) - rootStart
		libs, err := processLibs(proc)
		if err != nil {
			return err
		}
		threads, err := threadObjects(proc)
		if err != nil {
			return err
		}
		for i, rawThread := range threads {
			thread, err := processThread(rawThread, libs, delta)
			if err == nil {
				err = thread.Validate()
			}
			if err != nil {
				if !errors.Is(err, profile.ErrMalformedTable) {
					return fmt.Errorf("thread %d: %w", i, err)
				}
				log.Warnf("Dropping thread %q: %v",
					rawjson.StringOr(rawThread, "name", ""), err)
				metrics.Add(metrics.IDMalformedThreads, 1)
				continue
			}
			if shutdown := nullableFloat(procMeta["shutdownTime"]); shutdown != nil {
				t := *shutdown + delta
				thread.ProcessShutdownTime = &t
			}
			thread.ProcessStartupTime = delta
			p.Threads = append(p.Threads, thread)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func nullableFloat(v any) *float64 {
	f, ok := rawjson.AsFloat(v)
	if !ok {
		return nil
	}
	return &f
}

func processCategories(meta object) []profile.Category {
	list, ok := rawjson.Array(meta, "categories")
	if !ok {
		list = categoryList()
	}
	categories := make([]profile.Category, 0, len(list))
	for _, c := range list {
		obj, ok := c.(map[string]any)
		if !ok {
			continue
		}
		categories = append(categories, profile.Category{
			Name:  rawjson.StringOr(obj, "name", ""),
			Color: rawjson.StringOr(obj, "color", ""),
		})
	}
	return categories
}

func processLibs(proc object) ([]profile.Lib, error) {
	list, _ := rawjson.Array(proc, "libs")
	libs := make([]profile.Lib, 0, len(list))
	for i, l := range list {
		obj, ok := l.(map[string]any)
		if !ok {
			return nil, malformedf("lib %d is not an object", i)
		}
		libs = append(libs, profile.Lib{
			Start:      uint64(rawjson.FloatOr(obj, "start", 0)),
			End:        uint64(rawjson.FloatOr(obj, "end", 0)),
			Offset:     uint64(rawjson.FloatOr(obj, "offset", 0)),
			Arch:       rawjson.StringOr(obj, "arch", ""),
			Name:       rawjson.StringOr(obj, "name", ""),
			Path:       rawjson.StringOr(obj, "path", ""),
			DebugName:  rawjson.StringOr(obj, "debugName", ""),
			DebugPath:  rawjson.StringOr(obj, "debugPath", ""),
			BreakpadID: rawjson.StringOr(obj, "breakpadId", ""),
		})
	}
	sort.SliceStable(libs, func(i, j int) bool { return libs[i].Start < libs[j].Start })
	return libs, nil
}

// columnIndex resolves a schema field, returning -1 for absent fields so that
// cell() yields nil.
func (t schemaTable) columnIndex(field string) int {
	if col, ok := t.column(field); ok {
		return col
	}
	return -1
}

func indexOrNull(v any, length int, what string) (int, error) {
	if v == nil {
		return profile.NoIndex, nil
	}
	idx, ok := rawjson.AsInt(v)
	if !ok || idx < 0 || idx >= length {
		return 0, fmt.Errorf("%w: %s index %v", profile.ErrMalformedTable, what, v)
	}
	return idx, nil
}

func intOrNull(v any) int {
	if n, ok := rawjson.AsInt(v); ok {
		return n
	}
	return profile.NoIndex
}

func processThread(raw object, libs []profile.Lib, delta float64) (*profile.Thread, error) {
	strs, err := rawStringTable(raw)
	if err != nil {
		return nil, err
	}
	t := &profile.Thread{
		Name:         rawjson.StringOr(raw, "name", ""),
		ProcessType:  rawjson.StringOr(raw, "processType", "default"),
		PID:          pidString(raw["pid"]),
		TID:          rawjson.IntOr(raw, "tid", 0),
		RegisterTime: rawjson.FloatOr(raw, "registerTime", 0) + delta,
		StringTable:  stringtable.FromSlice(strs),
		Libs:         libs,
	}
	if unregister := nullableFloat(raw["unregisterTime"]); unregister != nil {
		u := *unregister + delta
		t.UnregisterTime = &u
	}

	if err := processFrames(t, raw, libs); err != nil {
		return nil, err
	}
	if err := processStacks(t, raw); err != nil {
		return nil, err
	}
	if err := processSamples(t, raw, delta); err != nil {
		return nil, err
	}
	if err := processMarkers(t, raw, delta); err != nil {
		return nil, err
	}
	return t, nil
}

func pidString(v any) string {
	switch pid := v.(type) {
	case string:
		return pid
	case nil:
		return ""
	default:
		if n, ok := rawjson.AsInt(pid); ok {
			return strconv.Itoa(n)
		}
		return fmt.Sprint(pid)
	}
}

// jsLocationRE matches "functionName (url:line)" and "functionName (url:line:column)".
var jsLocationRE = regexp.MustCompile(`^(.*) \((.+?):([0-9]+)(?::([0-9]+))?\)$`)

// funcExtractor turns frame location strings into funcs and resources.
type funcExtractor struct {
	t         *profile.Thread
	libs      []profile.Lib
	funcs     map[string]int
	resources map[string]int
}

func (e *funcExtractor) addResource(key string, typ profile.ResourceType, lib int,
	name, host string) int {
	if idx, ok := e.resources[key]; ok {
		return idx
	}
	r := &e.t.Resources
	idx := r.Length
	hostIdx := profile.NoIndex
	if host != "" {
		hostIdx = e.t.StringTable.Intern(host)
	}
	r.Lib = append(r.Lib, lib)
	r.Name = append(r.Name, e.t.StringTable.Intern(name))
	r.Host = append(r.Host, hostIdx)
	r.Type = append(r.Type, typ)
	r.Length++
	e.resources[key] = idx
	return idx
}

func (e *funcExtractor) addFunc(key string, name string, resource int, isJS, relevantForJS bool,
	file, line, column int, address int64) int {
	if idx, ok := e.funcs[key]; ok {
		if relevantForJS {
			e.t.Funcs.RelevantForJS[idx] = true
		}
		return idx
	}
	f := &e.t.Funcs
	idx := f.Length
	f.Name = append(f.Name, e.t.StringTable.Intern(name))
	f.Resource = append(f.Resource, resource)
	f.IsJS = append(f.IsJS, isJS)
	f.RelevantForJS = append(f.RelevantForJS, relevantForJS)
	f.FileName = append(f.FileName, file)
	f.LineNumber = append(f.LineNumber, line)
	f.ColumnNumber = append(f.ColumnNumber, column)
	f.Address = append(f.Address, address)
	f.Length++
	e.funcs[key] = idx
	return idx
}

// libForAddress returns the index of the lib containing addr, or -1.
func libForAddress(libs []profile.Lib, addr uint64) int {
	i := sort.Search(len(libs), func(i int) bool { return libs[i].Start > addr }) - 1
	if i < 0 || addr >= libs[i].End {
		return -1
	}
	return i
}

// resourceForURL classifies a script URL by its origin.
func (e *funcExtractor) resourceForURL(scriptURL string) int {
	u, err := url.Parse(scriptURL)
	if err != nil || u.Scheme == "" {
		return profile.NoIndex
	}
	switch u.Scheme {
	case "http", "https":
		origin := u.Scheme + "://" + u.Host
		return e.addResource("webhost:"+origin, profile.ResourceTypeWebhost,
			profile.NoIndex, u.Host, origin)
	case "moz-extension":
		return e.addResource("addon:"+u.Host, profile.ResourceTypeAddon,
			profile.NoIndex, u.Host, "")
	default:
		origin := u.Scheme + "://" + u.Host
		return e.addResource("url:"+origin, profile.ResourceTypeURL,
			profile.NoIndex, origin, "")
	}
}

// extract returns the func and the library relative address of a frame location.
func (e *funcExtractor) extract(location string, relevantForJS bool) (int, int64) {
	if profile.IsHexAddress(location) {
		addr, err := strconv.ParseUint(location[2:], 16, 64)
		if err == nil {
			lib := libForAddress(e.libs, addr)
			if lib < 0 {
				return e.addFunc("addr:"+location, location, profile.NoIndex,
					false, relevantForJS, profile.NoIndex, profile.NoIndex,
					profile.NoIndex, -1), -1
			}
			l := &e.libs[lib]
			res := e.addResource("lib:"+strconv.Itoa(lib), profile.ResourceTypeLibrary,
				lib, l.Name, "")
			rel := int64(addr - l.Start)
			return e.addFunc("addr:"+location, location, res, false, relevantForJS,
				profile.NoIndex, profile.NoIndex, profile.NoIndex, rel), rel
		}
	}

	if m := jsLocationRE.FindStringSubmatch(location); m != nil && strings.Contains(m[2], ":") {
		name, scriptURL := m[1], m[2]
		line, _ := strconv.Atoi(m[3])
		column := profile.NoIndex
		if m[4] != "" {
			column, _ = strconv.Atoi(m[4])
		}
		res := e.resourceForURL(scriptURL)
		return e.addFunc("js:"+location, name, res, true, relevantForJS,
			e.t.StringTable.Intern(scriptURL), line, column, -1), -1
	}

	return e.addFunc("label:"+location, location, profile.NoIndex, false, relevantForJS,
		profile.NoIndex, profile.NoIndex, profile.NoIndex, -1), -1
}

func processFrames(t *profile.Thread, raw object, libs []profile.Lib) error {
	frames, err := tableOf(raw, "frameTable")
	if err != nil {
		return err
	}
	locationCol := frames.columnIndex("location")
	relevantCol := frames.columnIndex("relevantForJS")
	implCol := frames.columnIndex("implementation")
	lineCol := frames.columnIndex("line")
	columnCol := frames.columnIndex("column")
	categoryCol := frames.columnIndex("category")

	ext := &funcExtractor{
		t:         t,
		libs:      libs,
		funcs:     make(map[string]int),
		resources: make(map[string]int),
	}
	// The extractor interns into the string table, so check location
	// indices against the original length.
	strCount := t.StringTable.Len()
	ft := &t.Frames
	for i := range frames.data {
		row, ok := frames.row(i)
		if !ok {
			return fmt.Errorf("%w: frame %d is not an array", profile.ErrMalformedTable, i)
		}
		locIdx, err := indexOrNull(cell(row, locationCol), strCount, "frame location")
		if err != nil {
			return err
		}
		if locIdx == profile.NoIndex {
			return fmt.Errorf("%w: frame %d has no location", profile.ErrMalformedTable, i)
		}
		location := t.StringTable.MustString(locIdx)
		relevant, _ := cell(row, relevantCol).(bool)
		fn, addr := ext.extract(location, relevant)

		impl, err := indexOrNull(cell(row, implCol), strCount, "frame implementation")
		if err != nil {
			return err
		}
		ft.Address = append(ft.Address, addr)
		ft.Category = append(ft.Category, intOrNull(cell(row, categoryCol)))
		ft.Func = append(ft.Func, fn)
		ft.Implementation = append(ft.Implementation, impl)
		ft.Line = append(ft.Line, intOrNull(cell(row, lineCol)))
		ft.Column = append(ft.Column, intOrNull(cell(row, columnCol)))
		ft.Length++
	}
	return nil
}

func processStacks(t *profile.Thread, raw object) error {
	stacks, err := tableOf(raw, "stackTable")
	if err != nil {
		return err
	}
	prefixCol := stacks.columnIndex("prefix")
	frameCol := stacks.columnIndex("frame")
	st := &t.Stacks
	for i := range stacks.data {
		row, ok := stacks.row(i)
		if !ok {
			return fmt.Errorf("%w: stack %d is not an array", profile.ErrMalformedTable, i)
		}
		prefix, err := indexOrNull(cell(row, prefixCol), i, "stack prefix")
		if err != nil {
			return err
		}
		frame, err := indexOrNull(cell(row, frameCol), t.Frames.Length, "stack frame")
		if err != nil {
			return err
		}
		st.Prefix = append(st.Prefix, prefix)
		st.Frame = append(st.Frame, frame)
		st.Length++
	}
	return nil
}

func processSamples(t *profile.Thread, raw object, delta float64) error {
	samples, err := tableOf(raw, "samples")
	if err != nil {
		return err
	}
	stackCol := samples.columnIndex("stack")
	timeCol := samples.columnIndex("time")
	respCol := samples.columnIndex("responsiveness")
	s := &t.Samples
	if respCol >= 0 {
		s.Responsiveness = make([]float64, 0, len(samples.data))
	}
	for i := range samples.data {
		row, ok := samples.row(i)
		if !ok {
			return fmt.Errorf("%w: sample %d is not an array", profile.ErrMalformedTable, i)
		}
		stack, err := indexOrNull(cell(row, stackCol), t.Stacks.Length, "sample stack")
		if err != nil {
			return err
		}
		tm, ok := rawjson.AsFloat(cell(row, timeCol))
		if !ok {
			return fmt.Errorf("%w: sample %d has no time", profile.ErrMalformedTable, i)
		}
		s.Stack = append(s.Stack, stack)
		s.Time = append(s.Time, tm+delta)
		if respCol >= 0 {
			resp, ok := rawjson.AsFloat(cell(row, respCol))
			if !ok {
				resp = math.NaN()
			}
			s.Responsiveness = append(s.Responsiveness, resp)
		}
		s.Length++
	}
	return nil
}

func processMarkers(t *profile.Thread, raw object, delta float64) error {
	markers, err := tableOf(raw, "markers")
	if err != nil {
		return err
	}
	nameCol := markers.columnIndex("name")
	timeCol := markers.columnIndex("time")
	dataCol := markers.columnIndex("data")
	strCount := t.StringTable.Len()
	m := &t.Markers
	for i := range markers.data {
		row, ok := markers.row(i)
		if !ok {
			return fmt.Errorf("%w: marker %d is not an array", profile.ErrMalformedTable, i)
		}
		name, err := indexOrNull(cell(row, nameCol), strCount, "marker name")
		if err != nil {
			return err
		}
		if name == profile.NoIndex {
			return fmt.Errorf("%w: marker %d has no name", profile.ErrMalformedTable, i)
		}
		tm, _ := rawjson.AsFloat(cell(row, timeCol))
		rawData, _ := cell(row, dataCol).(map[string]any)
		data, err := profile.ParseMarkerPayload(rawData)
		if err != nil {
			log.Debugf("Ignoring payload of marker %d: %v", i, err)
			data = nil
		}
		m.Time = append(m.Time, tm+delta)
		m.Name = append(m.Name, name)
		m.Data = append(m.Data, profile.ShiftPayload(data, delta))
		m.Length++
	}
	return nil
}
