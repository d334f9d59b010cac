// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package gecko reads profiles in the format written by the Gecko profiler,
// upgrades them to the current format version and converts them into the
// processed, columnar representation of package profile.
package gecko // import "go.opentelemetry.io/profile-viewer/gecko"

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/profile-viewer/internal/rawjson"
	"go.opentelemetry.io/profile-viewer/metrics"
)

// CurrentVersion is the most recent gecko profile format version understood here.
const CurrentVersion = 12

// Profiles before version 1 did not carry meta.version.
const unannotatedVersion = 0

var (
	// ErrUnsupportedVersion is returned for versions without a migration path.
	ErrUnsupportedVersion = errors.New("unsupported gecko profile version")
	// ErrFutureVersion is returned for versions newer than CurrentVersion.
	ErrFutureVersion = errors.New("gecko profile version is newer than supported")
	// ErrMalformedProfile is returned when the profile doesn't have the expected shape.
	ErrMalformedProfile = errors.New("malformed gecko profile")
)

type object = rawjson.Object

// upgrader mutates a whole profile tree from version N-1 to N.
type upgrader func(root object) error

// upgraders[N] converts from version N-1 to version N.
var upgraders = map[int]upgrader{
	1:  unsupported(0),
	2:  unsupported(1),
	3:  unsupported(2),
	4:  upgradeTo4,
	5:  upgradeTo5,
	6:  perProcess(upgradeProcessTo6),
	7:  perProcess(upgradeProcessTo7),
	8:  perProcess(upgradeProcessTo8),
	9:  perProcess(upgradeProcessTo9),
	10: perProcess(upgradeProcessTo10),
	11: upgradeTo11,
	12: perProcess(upgradeProcessTo12),
}

func malformedf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedProfile, fmt.Sprintf(format, args...))
}

func unsupported(from int) upgrader {
	return func(object) error {
		return fmt.Errorf("%w: no conversion exists for version %d", ErrUnsupportedVersion, from)
	}
}

// Version returns the format version of a decoded profile.
func Version(raw object) (int, error) {
	meta, ok := rawjson.Obj(raw, "meta")
	if !ok {
		return 0, malformedf("missing meta object")
	}
	v, present := meta["version"]
	if !present || v == nil {
		return unannotatedVersion, nil
	}
	version, ok := rawjson.AsInt(v)
	if !ok || version < 0 {
		return 0, malformedf("meta.version %v is not a version number", v)
	}
	return version, nil
}

// Upgrade migrates a decoded profile to CurrentVersion in place, one version
// at a time. On error the profile is left in an unspecified state and must be
// discarded.
func Upgrade(raw object) error {
	version, err := Version(raw)
	if err != nil {
		return err
	}
	if version == CurrentVersion {
		return nil
	}
	if version > CurrentVersion {
		metrics.Add(metrics.IDUpgradeErrors, 1)
		return fmt.Errorf("%w: version %d, the most recent version understood is %d",
			ErrFutureVersion, version, CurrentVersion)
	}

	for dest := version + 1; dest <= CurrentVersion; dest++ {
		up, ok := upgraders[dest]
		if !ok {
			continue
		}
		if err := up(raw); err != nil {
			if errors.Is(err, ErrUnsupportedVersion) {
				metrics.Add(metrics.IDUpgradeErrors, 1)
			}
			return fmt.Errorf("upgrading to version %d: %w", dest, err)
		}
		log.Debugf("Upgraded gecko profile to version %d", dest)
		metrics.Add(metrics.IDUpgradeSteps, 1)
	}

	meta, _ := rawjson.Obj(raw, "meta")
	meta["version"] = float64(CurrentVersion)
	metrics.Add(metrics.IDUpgradedProfiles, 1)
	return nil
}

// forEachProcess calls fn for p and every profile nested in its processes
// array, depth first.
func forEachProcess(p object, fn func(object) error) error {
	if err := fn(p); err != nil {
		return err
	}
	procs, present := p["processes"]
	if !present || procs == nil {
		return nil
	}
	list, ok := procs.([]any)
	if !ok {
		return malformedf("processes is not an array")
	}
	for i, sub := range list {
		subProfile, ok := sub.(map[string]any)
		if !ok {
			return malformedf("process %d is not an object", i)
		}
		if err := forEachProcess(subProfile, fn); err != nil {
			return err
		}
	}
	return nil
}

func perProcess(fn func(object) error) upgrader {
	return func(root object) error {
		return forEachProcess(root, fn)
	}
}

// threadObjects returns the thread objects of a profile from version 5 on.
func threadObjects(p object) ([]object, error) {
	list, ok := rawjson.Array(p, "threads")
	if !ok {
		return nil, malformedf("threads is not an array")
	}
	threads := make([]object, 0, len(list))
	for i, t := range list {
		thread, ok := t.(map[string]any)
		if !ok {
			return nil, malformedf("thread %d is not an object", i)
		}
		threads = append(threads, thread)
	}
	return threads, nil
}

// schemaTable is a {schema: {field: column}, data: [[...], ...]} table.
type schemaTable struct {
	raw    object
	schema object
	data   []any
}

func tableOf(thread object, name string) (schemaTable, error) {
	tbl, ok := rawjson.Obj(thread, name)
	if !ok {
		return schemaTable{}, malformedf("thread has no %s table", name)
	}
	schema, ok := rawjson.Obj(tbl, "schema")
	if !ok {
		return schemaTable{}, malformedf("%s has no schema", name)
	}
	data, ok := rawjson.Array(tbl, "data")
	if !ok {
		return schemaTable{}, malformedf("%s has no data", name)
	}
	return schemaTable{raw: tbl, schema: schema, data: data}, nil
}

func (t schemaTable) column(field string) (int, bool) {
	return rawjson.Int(t.schema, field)
}

func (t schemaTable) row(i int) ([]any, bool) {
	r, ok := t.data[i].([]any)
	return r, ok
}

func cell(row []any, col int) any {
	if col < 0 || col >= len(row) {
		return nil
	}
	return row[col]
}

func rawStringTable(thread object) ([]string, error) {
	list, ok := rawjson.Array(thread, "stringTable")
	if !ok {
		return nil, malformedf("thread has no string table")
	}
	strs := make([]string, len(list))
	for i, v := range list {
		s, ok := v.(string)
		if !ok {
			return nil, malformedf("string table entry %d is not a string", i)
		}
		strs[i] = s
	}
	return strs, nil
}

func markerName(strs []string, v any) (string, bool) {
	idx, ok := rawjson.AsInt(v)
	if !ok || idx < 0 || idx >= len(strs) {
		return "", false
	}
	return strs[idx], true
}

func archFromABI(abi string) string {
	if abi == "x86_64-gcc3" {
		return "x86_64"
	}
	return abi
}

// Version 4 turned the stringified libs into an array of objects with debug
// information, sorted by start address, and gave every thread a processType.
// Subprocess profiles are still stringified JSON inside the threads array.
func upgradeTo4(p object) error {
	meta, ok := rawjson.Obj(p, "meta")
	if !ok {
		return malformedf("missing meta object")
	}
	abi := rawjson.StringOr(meta, "abi", "")

	var libs []any
	switch v := p["libs"].(type) {
	case string:
		if err := json.Unmarshal([]byte(v), &libs); err != nil {
			return malformedf("libs: %v", err)
		}
	case []any:
		libs = v
	case nil:
	default:
		return malformedf("libs has type %T", v)
	}
	for i, l := range libs {
		lib, ok := l.(map[string]any)
		if !ok {
			return malformedf("lib %d is not an object", i)
		}
		if err := upgradeLib3To4(lib, abi); err != nil {
			return fmt.Errorf("lib %d: %w", i, err)
		}
	}
	slices.SortStableFunc(libs, func(a, b any) int {
		sa := rawjson.FloatOr(a.(map[string]any), "start", 0)
		sb := rawjson.FloatOr(b.(map[string]any), "start", 0)
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		}
		return 0
	})
	if libs == nil {
		libs = []any{}
	}
	p["libs"] = libs

	threads, ok := rawjson.Array(p, "threads")
	if !ok {
		return malformedf("threads is not an array")
	}
	for i, t := range threads {
		switch thread := t.(type) {
		case string:
			var sub object
			if err := json.Unmarshal([]byte(thread), &sub); err != nil {
				return malformedf("subprocess %d: %v", i, err)
			}
			if err := upgradeTo4(sub); err != nil {
				return err
			}
			encoded, err := json.Marshal(sub)
			if err != nil {
				return fmt.Errorf("encoding subprocess %d: %w", i, err)
			}
			threads[i] = string(encoded)
		case map[string]any:
			if _, present := thread["processType"]; present {
				continue
			}
			// Early version 3 profiles named the main thread of tab processes
			// "Content" and had no processType.
			switch rawjson.StringOr(thread, "name", "") {
			case "Content":
				thread["processType"] = "tab"
				thread["name"] = "GeckoMain"
			case "Plugin":
				thread["processType"] = "plugin"
			default:
				thread["processType"] = "default"
			}
		default:
			return malformedf("thread %d has type %T", i, t)
		}
	}

	meta["version"] = float64(4)
	return nil
}

func upgradeLib3To4(lib object, abi string) error {
	name := rawjson.StringOr(lib, "name", "")
	var debugName string
	if _, present := lib["breakpadId"]; present {
		debugName = name[strings.LastIndexByte(name, '/')+1:]
	} else {
		debugName = rawjson.StringOr(lib, "pdbName", "")
		sig, ok := rawjson.String(lib, "pdbSignature")
		if !ok {
			return malformedf("lib %q has neither breakpadId nor pdbSignature", name)
		}
		sig = strings.ToUpper(strings.NewReplacer("{", "", "}", "", "-", "").Replace(sig))
		age := ""
		if n, ok := rawjson.Int(lib, "pdbAge"); ok {
			age = strconv.Itoa(n)
		} else if s, ok := rawjson.String(lib, "pdbAge"); ok {
			age = s
		}
		lib["breakpadId"] = sig + age
	}
	delete(lib, "pdbName")
	delete(lib, "pdbAge")
	delete(lib, "pdbSignature")
	lib["debugName"] = debugName
	lib["path"] = name
	lib["name"] = strings.TrimSuffix(debugName, ".pdb")
	lib["arch"] = archFromABI(abi)
	lib["debugPath"] = ""
	return nil
}

// Version 5 moved stringified subprocess profiles out of the threads array
// into a separate processes array of objects.
func upgradeTo5(p object) error {
	list, ok := rawjson.Array(p, "threads")
	if !ok {
		return malformedf("threads is not an array")
	}
	threads := make([]any, 0, len(list))
	processes := make([]any, 0)
	for i, t := range list {
		switch thread := t.(type) {
		case string:
			var sub object
			if err := json.Unmarshal([]byte(thread), &sub); err != nil {
				return malformedf("subprocess %d: %v", i, err)
			}
			if err := upgradeTo5(sub); err != nil {
				return err
			}
			processes = append(processes, sub)
		default:
			threads = append(threads, thread)
		}
	}
	p["threads"] = threads
	p["processes"] = processes
	if meta, ok := rawjson.Obj(p, "meta"); ok {
		meta["version"] = float64(5)
	}
	return nil
}

// Version 6 removed the frameNumber column from the samples table. It used
// to be the last column.
func upgradeProcessTo6(p object) error {
	threads, err := threadObjects(p)
	if err != nil {
		return err
	}
	for _, thread := range threads {
		samples, err := tableOf(thread, "samples")
		if err != nil {
			return err
		}
		delete(samples.schema, "frameNumber")
		for i := range samples.data {
			if row, ok := samples.row(i); ok && len(row) > 5 {
				samples.data[i] = row[:5]
			}
		}
	}
	return nil
}

// Version 7 renamed the type field of DOMEvent payloads to eventType.
func upgradeProcessTo7(p object) error {
	threads, err := threadObjects(p)
	if err != nil {
		return err
	}
	for _, thread := range threads {
		strs, err := rawStringTable(thread)
		if err != nil {
			return err
		}
		markers, err := tableOf(thread, "markers")
		if err != nil {
			return err
		}
		nameCol, _ := markers.column("name")
		dataCol, _ := markers.column("data")
		for i := range markers.data {
			row, ok := markers.row(i)
			if !ok {
				continue
			}
			if name, _ := markerName(strs, cell(row, nameCol)); name != "DOMEvent" {
				continue
			}
			if data, ok := cell(row, dataCol).(map[string]any); ok {
				upgradeDOMEventMarker6To7(data)
			}
		}
	}
	return nil
}

func upgradeDOMEventMarker6To7(data object) {
	data["eventType"] = data["type"]
	data["type"] = "DOMEvent"
}

// Version 8 added paused ranges, the process shutdown time and thread
// register/unregister times. Missing data can't be invented, so everything
// starts out as "never paused, still alive, registered at startup".
func upgradeProcessTo8(p object) error {
	meta, ok := rawjson.Obj(p, "meta")
	if !ok {
		return malformedf("missing meta object")
	}
	p["pausedRanges"] = []any{}
	meta["shutdownTime"] = nil

	threads, err := threadObjects(p)
	if err != nil {
		return err
	}
	for _, thread := range threads {
		thread["registerTime"] = float64(0)
		thread["unregisterTime"] = nil
	}
	return nil
}

// Version 9 changed the layout of GCMinor and GCMajor payloads.
func upgradeProcessTo9(p object) error {
	threads, err := threadObjects(p)
	if err != nil {
		return err
	}
	for _, thread := range threads {
		markers, err := tableOf(thread, "markers")
		if err != nil {
			return err
		}
		dataCol, _ := markers.column("data")
		for i := range markers.data {
			row, ok := markers.row(i)
			if !ok {
				continue
			}
			data, ok := cell(row, dataCol).(map[string]any)
			if !ok {
				continue
			}
			switch rawjson.StringOr(data, "type", "") {
			case "GCMinor":
				row[dataCol] = upgradeGCMinorMarker8To9(data)
			case "GCMajor":
				row[dataCol] = upgradeGCMajorMarker8To9(data)
			}
		}
	}
	return nil
}

func upgradeGCMinorMarker8To9(data object) object {
	nursery, ok := rawjson.Obj(data, "nursery")
	if !ok {
		return data
	}
	if status, ok := rawjson.String(nursery, "status"); ok {
		if status == "no collection" {
			nursery["status"] = "nursery empty"
		}
		return data
	}
	// Old layout, rename to the newer field names. Fields without a new
	// equivalent, like promotion_rate, are kept.
	nursery["status"] = "complete"
	nursery["bytes_used"] = nursery["nursery_bytes"]
	nursery["new_capacity"] = nursery["new_nursery_bytes"]
	nursery["phase_times"] = nursery["timings"]
	delete(nursery, "nursery_bytes")
	delete(nursery, "new_nursery_bytes")
	delete(nursery, "timings")
	return data
}

func upgradeGCMajorMarker8To9(data object) object {
	timings, ok := rawjson.Obj(data, "timings")
	if !ok {
		return data
	}
	if _, present := timings["status"]; present {
		return data
	}
	timings["status"] = "completed"
	// Older payloads stored the list of slices in "slices".
	if list, ok := rawjson.Array(timings, "slices"); ok {
		timings["slices_list"] = list
		timings["slices"] = float64(len(list))
	}
	if mb, ok := rawjson.Float(timings, "allocated"); ok {
		timings["allocated_bytes"] = mb * 1024 * 1024
		delete(timings, "allocated")
	}
	// Minimum mutator utilization used to be a percentage.
	for _, key := range []string{"mmu_20ms", "mmu_50ms"} {
		if v, ok := rawjson.Float(timings, key); ok {
			timings[key] = v / 100
		}
	}
	return data
}

// Version 10 turned DOMEvent interval payloads into pairs of tracing markers.
// The start marker replaces the original row, end markers are appended since
// gecko markers don't need to be sorted by time.
func upgradeProcessTo10(p object) error {
	threads, err := threadObjects(p)
	if err != nil {
		return err
	}
	for _, thread := range threads {
		strs, err := rawStringTable(thread)
		if err != nil {
			return err
		}
		markers, err := tableOf(thread, "markers")
		if err != nil {
			return err
		}
		nameCol, _ := markers.column("name")
		dataCol, _ := markers.column("data")
		timeCol, _ := markers.column("time")
		width := max(nameCol, dataCol, timeCol) + 1

		var extra []any
		for i := range markers.data {
			row, ok := markers.row(i)
			if !ok {
				continue
			}
			if name, _ := markerName(strs, cell(row, nameCol)); name != "DOMEvent" {
				continue
			}
			data, ok := cell(row, dataCol).(map[string]any)
			if !ok || rawjson.StringOr(data, "type", "") == "tracing" {
				continue
			}
			start, end := upgradeDOMEventMarker9To10(data)

			endRow := make([]any, width)
			endRow[dataCol] = end
			endRow[timeCol] = data["endTime"]
			endRow[nameCol] = cell(row, nameCol)
			extra = append(extra, endRow)

			if len(row) < width {
				row = append(row, make([]any, width-len(row))...)
				markers.data[i] = row
			}
			row[timeCol] = data["startTime"]
			row[dataCol] = start
		}
		markers.raw["data"] = append(markers.data, extra...)
	}
	return nil
}

func upgradeDOMEventMarker9To10(data object) (start, end object) {
	tracing := func(interval string) object {
		return object{
			"type":      "tracing",
			"category":  "DOMEvent",
			"timeStamp": data["timeStamp"],
			"interval":  interval,
			"eventType": data["eventType"],
			"phase":     data["phase"],
		}
	}
	return tracing("start"), tracing("end")
}

// categoryList is the category list introduced with version 11.
func categoryList() []any {
	return []any{
		object{"name": "Idle", "color": "transparent"},
		object{"name": "Other", "color": "grey"},
		object{"name": "JavaScript", "color": "yellow"},
		object{"name": "Layout", "color": "purple"},
		object{"name": "Graphics", "color": "green"},
		object{"name": "DOM", "color": "blue"},
		object{"name": "GC / CC", "color": "orange"},
		object{"name": "Network", "color": "lightblue"},
	}
}

const categoryOther = 1

// oldCategoryToNewCategory maps the bit flags of the old profiling stack
// categories to indices into categoryList.
var oldCategoryToNewCategory = map[int]int{
	1 << 4:  categoryOther, // OTHER
	1 << 5:  3,             // CSS -> Layout
	1 << 6:  2,             // JS -> JavaScript
	1 << 7:  6,             // GC -> GC / CC
	1 << 8:  6,             // CC -> GC / CC
	1 << 9:  7,             // NETWORK -> Network
	1 << 10: 4,             // GRAPHICS -> Graphics
	1 << 11: categoryOther, // STORAGE
	1 << 12: categoryOther, // EVENTS
}

// Version 11 introduced meta.categories, frame categories became indices into
// it. Threads without pid get a unique placeholder, numbered across the whole
// process tree.
func upgradeTo11(root object) error {
	unknownPid := 0
	err := forEachProcess(root, func(p object) error {
		threads, err := threadObjects(p)
		if err != nil {
			return err
		}
		for _, thread := range threads {
			if thread["pid"] == nil {
				unknownPid++
				thread["pid"] = fmt.Sprintf("Unknown Process %d", unknownPid)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return forEachProcess(root, func(p object) error {
		meta, ok := rawjson.Obj(p, "meta")
		if !ok {
			return malformedf("missing meta object")
		}
		meta["categories"] = categoryList()

		threads, err := threadObjects(p)
		if err != nil {
			return err
		}
		for _, thread := range threads {
			frames, err := tableOf(thread, "frameTable")
			if err != nil {
				return err
			}
			catCol, ok := frames.column("category")
			if !ok {
				continue
			}
			for i := range frames.data {
				row, ok := frames.row(i)
				if !ok || catCol >= len(row) || row[catCol] == nil {
					continue
				}
				category := categoryOther
				if old, ok := rawjson.AsInt(row[catCol]); ok {
					if mapped, ok := oldCategoryToNewCategory[old]; ok {
						category = mapped
					}
				}
				row[catCol] = float64(category)
			}
		}
		return nil
	})
}

// Version 12 added a column field to the frame table, which takes over the
// position of category. Category moves to index 5.
func upgradeProcessTo12(p object) error {
	const (
		oldCategoryIndex = 4
		newCategoryIndex = 5
	)
	threads, err := threadObjects(p)
	if err != nil {
		return err
	}
	for _, thread := range threads {
		frames, err := tableOf(thread, "frameTable")
		if err != nil {
			return err
		}
		catCol, hasCategory := frames.column("category")
		for i := range frames.data {
			row, ok := frames.row(i)
			if !ok || !hasCategory || catCol >= len(row) {
				continue
			}
			if len(row) <= newCategoryIndex {
				row = append(row, make([]any, newCategoryIndex+1-len(row))...)
				frames.data[i] = row
			}
			row[newCategoryIndex] = row[oldCategoryIndex]
			row[oldCategoryIndex] = nil
		}
		frames.schema["category"] = float64(newCategoryIndex)
		frames.schema["column"] = float64(oldCategoryIndex)
	}
	return nil
}
