// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package transform // import "go.opentelemetry.io/profile-viewer/transform"

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/profile-viewer/callnode"
	"go.opentelemetry.io/profile-viewer/profile"
)

// ErrInvalidTransform is returned when a transform key can't be parsed.
var ErrInvalidTransform = errors.New("invalid transform")

const (
	keyFocusSubtree            = "f"
	keyFocusFunction           = "ff"
	keyMergeCallNode           = "mcn"
	keyMergeFunction           = "mf"
	keyDropFunction            = "df"
	keyCollapseDirectRecursion = "rec"
	keyCollapseFunctionSubtree = "cfs"

	stackSeparator = "~"
	pathSeparator  = "w"
)

func encodePath(path callnode.Path) string {
	parts := make([]string, len(path))
	for i, fn := range path {
		parts[i] = strconv.Itoa(fn)
	}
	return strings.Join(parts, pathSeparator)
}

func decodePath(s string) (callnode.Path, error) {
	if s == "" {
		return callnode.Path{}, nil
	}
	parts := strings.Split(s, pathSeparator)
	path := make(callnode.Path, len(parts))
	for i, p := range parts {
		fn, err := strconv.Atoi(p)
		if err != nil || fn < 0 {
			return nil, fmt.Errorf("%w: bad call node path %q", ErrInvalidTransform, s)
		}
		path[i] = fn
	}
	return path, nil
}

func implOrCombined(impl profile.Implementation) profile.Implementation {
	if impl == "" {
		return profile.ImplementationCombined
	}
	return impl
}

// Key returns a short, stable string for a transform. It is used for
// memoization and as a command line representation.
func Key(tr Transform) string {
	switch v := tr.(type) {
	case FocusSubtree:
		key := fmt.Sprintf("%s-%s-%s", keyFocusSubtree, implOrCombined(v.Implementation),
			encodePath(v.CallNodePath))
		if v.Inverted {
			key += "-i"
		}
		return key
	case FocusFunction:
		return fmt.Sprintf("%s-%d", keyFocusFunction, v.FuncIndex)
	case MergeCallNode:
		return fmt.Sprintf("%s-%s-%s", keyMergeCallNode, implOrCombined(v.Implementation),
			encodePath(v.CallNodePath))
	case MergeFunction:
		return fmt.Sprintf("%s-%d", keyMergeFunction, v.FuncIndex)
	case DropFunction:
		return fmt.Sprintf("%s-%d", keyDropFunction, v.FuncIndex)
	case CollapseDirectRecursion:
		return fmt.Sprintf("%s-%d", keyCollapseDirectRecursion, v.FuncIndex)
	case CollapseFunctionSubtree:
		return fmt.Sprintf("%s-%d", keyCollapseFunctionSubtree, v.FuncIndex)
	default:
		panic(fmt.Sprintf("unhandled transform %T", tr))
	}
}

// StackKey joins the keys of a transform stack.
func StackKey(stack []Transform) string {
	keys := make([]string, len(stack))
	for i, tr := range stack {
		keys[i] = Key(tr)
	}
	return strings.Join(keys, stackSeparator)
}

func parseImplementation(s string) (profile.Implementation, error) {
	switch impl := profile.Implementation(s); impl {
	case profile.ImplementationCombined, profile.ImplementationJS, profile.ImplementationCpp:
		return impl, nil
	default:
		return "", fmt.Errorf("%w: unknown implementation %q", ErrInvalidTransform, s)
	}
}

func parseFuncIndex(s string) (int, error) {
	fn, err := strconv.Atoi(s)
	if err != nil || fn < 0 {
		return 0, fmt.Errorf("%w: bad function index %q", ErrInvalidTransform, s)
	}
	return fn, nil
}

// Parse is the inverse of Key.
func Parse(key string) (Transform, error) {
	parts := strings.Split(key, "-")
	switch parts[0] {
	case keyFocusSubtree, keyMergeCallNode:
		inverted := false
		if parts[0] == keyFocusSubtree && len(parts) == 4 && parts[3] == "i" {
			inverted = true
			parts = parts[:3]
		}
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTransform, key)
		}
		impl, err := parseImplementation(parts[1])
		if err != nil {
			return nil, err
		}
		path, err := decodePath(parts[2])
		if err != nil {
			return nil, err
		}
		if parts[0] == keyMergeCallNode {
			return MergeCallNode{CallNodePath: path, Implementation: impl}, nil
		}
		return FocusSubtree{CallNodePath: path, Implementation: impl, Inverted: inverted}, nil
	case keyFocusFunction, keyMergeFunction, keyDropFunction,
		keyCollapseDirectRecursion, keyCollapseFunctionSubtree:
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTransform, key)
		}
		fn, err := parseFuncIndex(parts[1])
		if err != nil {
			return nil, err
		}
		switch parts[0] {
		case keyFocusFunction:
			return FocusFunction{FuncIndex: fn}, nil
		case keyMergeFunction:
			return MergeFunction{FuncIndex: fn}, nil
		case keyDropFunction:
			return DropFunction{FuncIndex: fn}, nil
		case keyCollapseDirectRecursion:
			return CollapseDirectRecursion{FuncIndex: fn}, nil
		default:
			return CollapseFunctionSubtree{FuncIndex: fn}, nil
		}
	default:
		return nil, fmt.Errorf("%w: unknown kind in %q", ErrInvalidTransform, key)
	}
}

// ParseStack parses the output of StackKey. The empty string is an empty stack.
func ParseStack(s string) ([]Transform, error) {
	if s == "" {
		return nil, nil
	}
	keys := strings.Split(s, stackSeparator)
	stack := make([]Transform, 0, len(keys))
	for _, key := range keys {
		tr, err := Parse(key)
		if err != nil {
			return nil, err
		}
		stack = append(stack, tr)
	}
	return stack, nil
}

func lastFunc(path callnode.Path) int {
	if len(path) == 0 {
		return profile.NoIndex
	}
	return path[len(path)-1]
}

// Label returns a short human readable description of a transform.
func Label(t *profile.Thread, tr Transform) string {
	switch v := tr.(type) {
	case FocusSubtree:
		return "Focus Node: " + t.FuncName(lastFunc(v.CallNodePath))
	case FocusFunction:
		return "Focus: " + t.FuncName(v.FuncIndex)
	case MergeCallNode:
		return "Merge Node: " + t.FuncName(lastFunc(v.CallNodePath))
	case MergeFunction:
		return "Merge: " + t.FuncName(v.FuncIndex)
	case DropFunction:
		return "Drop: " + t.FuncName(v.FuncIndex)
	case CollapseDirectRecursion:
		return "Collapse recursion: " + t.FuncName(v.FuncIndex)
	case CollapseFunctionSubtree:
		return "Collapse: " + t.FuncName(v.FuncIndex)
	default:
		panic(fmt.Sprintf("unhandled transform %T", tr))
	}
}

// RemapFuncs rewrites the function indices referenced by a transform.
// It is used when symbolication merges functions.
func RemapFuncs(tr Transform, remap func(fn int) int) Transform {
	remapPath := func(path callnode.Path) callnode.Path {
		out := make(callnode.Path, len(path))
		for i, fn := range path {
			out[i] = remap(fn)
		}
		return out
	}
	switch v := tr.(type) {
	case FocusSubtree:
		v.CallNodePath = remapPath(v.CallNodePath)
		return v
	case FocusFunction:
		v.FuncIndex = remap(v.FuncIndex)
		return v
	case MergeCallNode:
		v.CallNodePath = remapPath(v.CallNodePath)
		return v
	case MergeFunction:
		v.FuncIndex = remap(v.FuncIndex)
		return v
	case DropFunction:
		v.FuncIndex = remap(v.FuncIndex)
		return v
	case CollapseDirectRecursion:
		v.FuncIndex = remap(v.FuncIndex)
		return v
	case CollapseFunctionSubtree:
		v.FuncIndex = remap(v.FuncIndex)
		return v
	default:
		panic(fmt.Sprintf("unhandled transform %T", tr))
	}
}
