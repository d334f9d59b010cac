// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package transform // import "go.opentelemetry.io/profile-viewer/transform"

import (
	"fmt"

	"go.opentelemetry.io/profile-viewer/callnode"
	"go.opentelemetry.io/profile-viewer/profile"
)

// Transform is a structural edit of the call tree. The set of transforms is
// closed, consumers switch over the concrete types.
type Transform interface {
	isTransform()
}

// FocusSubtree makes the call node at CallNodePath the only root. Samples
// outside of that subtree are dropped. With Inverted set, the path is a
// leaf-to-root path of the inverted tree.
type FocusSubtree struct {
	CallNodePath   callnode.Path
	Implementation profile.Implementation
	Inverted       bool
}

// FocusFunction roots the tree at every outermost call of a function.
// Samples that don't contain it are dropped.
type FocusFunction struct {
	FuncIndex int
}

// MergeCallNode removes a single call node, its children attach to its parent.
type MergeCallNode struct {
	CallNodePath   callnode.Path
	Implementation profile.Implementation
}

// MergeFunction removes a function from every stack.
type MergeFunction struct {
	FuncIndex int
}

// DropFunction drops all samples that contain a function.
type DropFunction struct {
	FuncIndex int
}

// CollapseDirectRecursion folds a function calling itself directly into one
// call node.
type CollapseDirectRecursion struct {
	FuncIndex int
}

// CollapseFunctionSubtree folds everything a function calls into the function.
type CollapseFunctionSubtree struct {
	FuncIndex int
}

func (FocusSubtree) isTransform()            {}
func (FocusFunction) isTransform()           {}
func (MergeCallNode) isTransform()           {}
func (MergeFunction) isTransform()           {}
func (DropFunction) isTransform()            {}
func (CollapseDirectRecursion) isTransform() {}
func (CollapseFunctionSubtree) isTransform() {}

// ApplyTransform applies a single transform.
func ApplyTransform(t *profile.Thread, tr Transform) *profile.Thread {
	switch v := tr.(type) {
	case FocusSubtree:
		if v.Inverted {
			return focusInvertedSubtree(t, v.CallNodePath, v.Implementation)
		}
		return focusSubtree(t, v.CallNodePath, v.Implementation)
	case FocusFunction:
		return focusFunction(t, v.FuncIndex)
	case MergeCallNode:
		return mergeCallNode(t, v.CallNodePath, v.Implementation)
	case MergeFunction:
		return mergeFunction(t, v.FuncIndex)
	case DropFunction:
		return dropFunction(t, v.FuncIndex)
	case CollapseDirectRecursion:
		return collapseDirectRecursion(t, v.FuncIndex)
	case CollapseFunctionSubtree:
		return collapseFunctionSubtree(t, v.FuncIndex)
	default:
		panic(fmt.Sprintf("unhandled transform %T", tr))
	}
}

// ApplyTransformStack applies transforms in order. Each transform operates on
// the result of the previous one.
func ApplyTransformStack(t *profile.Thread, stack []Transform) *profile.Thread {
	for _, tr := range stack {
		t = ApplyTransform(t, tr)
	}
	return t
}

func matchesImpl(t *profile.Thread, impl profile.Implementation) func(fn int) bool {
	return func(fn int) bool {
		return t.FuncMatchesImplementation(fn, impl)
	}
}

func focusSubtree(t *profile.Thread, path callnode.Path,
	impl profile.Implementation) *profile.Thread {
	if len(path) == 0 {
		return t
	}
	funcMatches := matchesImpl(t, impl)
	st := &t.Stacks
	depth := len(path)
	// matched is the number of path elements matched on the way to a stack,
	// or -1 once the stack left the path.
	matched := make([]int, st.Length)
	oldToNew := make([]int, st.Length)
	b := newStackBuilder(st.Length, false)
	for stack := 0; stack < st.Length; stack++ {
		prefix := st.Prefix[stack]
		prefixMatched := 0
		if prefix != profile.NoIndex {
			prefixMatched = matched[prefix]
		}
		oldToNew[stack] = profile.NoIndex
		stackMatched := -1
		if prefixMatched != -1 {
			fn := t.StackFunc(stack)
			switch {
			case prefixMatched == depth:
				stackMatched = depth
			case fn == path[prefixMatched]:
				stackMatched = prefixMatched + 1
			case !funcMatches(fn):
				stackMatched = prefixMatched
			}
			if stackMatched == depth {
				newPrefix := profile.NoIndex
				if prefix != profile.NoIndex {
					newPrefix = oldToNew[prefix]
				}
				oldToNew[stack] = b.add(newPrefix, st.Frame[stack])
			}
		}
		matched[stack] = stackMatched
	}
	return updateThreadStacks(t, b.table, oldToNewLookup(oldToNew))
}

// focusInvertedSubtree keeps the stack table and points every sample at the
// stack where the leaf-to-root path completes.
func focusInvertedSubtree(t *profile.Thread, path callnode.Path,
	impl profile.Implementation) *profile.Thread {
	if len(path) == 0 {
		return t
	}
	funcMatches := matchesImpl(t, impl)
	st := &t.Stacks
	converted := make(map[int]int)
	convert := func(leaf int) int {
		if s, ok := converted[leaf]; ok {
			return s
		}
		result := profile.NoIndex
		matched := 0
		for s := leaf; s != profile.NoIndex; s = st.Prefix[s] {
			fn := t.StackFunc(s)
			if fn == path[matched] {
				matched++
				if matched == len(path) {
					result = s
					break
				}
			} else if funcMatches(fn) {
				break
			}
		}
		converted[leaf] = result
		return result
	}
	out := t.Clone()
	out.Samples = mapSampleStacks(t.Samples, convert)
	return out
}

func focusFunction(t *profile.Thread, fn int) *profile.Thread {
	st := &t.Stacks
	oldToNew := make([]int, st.Length)
	b := newStackBuilder(st.Length, false)
	for stack := 0; stack < st.Length; stack++ {
		prefix := st.Prefix[stack]
		newPrefix := profile.NoIndex
		if prefix != profile.NoIndex {
			newPrefix = oldToNew[prefix]
		}
		switch {
		case newPrefix != profile.NoIndex:
			oldToNew[stack] = b.add(newPrefix, st.Frame[stack])
		case t.StackFunc(stack) == fn:
			oldToNew[stack] = b.add(profile.NoIndex, st.Frame[stack])
		default:
			oldToNew[stack] = profile.NoIndex
		}
	}
	return updateThreadStacks(t, b.table, oldToNewLookup(oldToNew))
}

func mergeCallNode(t *profile.Thread, path callnode.Path,
	impl profile.Implementation) *profile.Thread {
	if len(path) == 0 {
		return t
	}
	funcMatches := matchesImpl(t, impl)
	st := &t.Stacks
	depth := len(path)
	matched := make([]int, st.Length)
	oldToNew := make([]int, st.Length)
	b := newStackBuilder(st.Length, false)
	for stack := 0; stack < st.Length; stack++ {
		prefix := st.Prefix[stack]
		prefixMatched := 0
		newPrefix := profile.NoIndex
		if prefix != profile.NoIndex {
			prefixMatched = matched[prefix]
			newPrefix = oldToNew[prefix]
		}

		stackMatched := -1
		merge := false
		if prefixMatched != -1 && prefixMatched < depth {
			fn := t.StackFunc(stack)
			switch {
			case fn == path[prefixMatched]:
				stackMatched = prefixMatched + 1
				merge = stackMatched == depth
			case !funcMatches(fn):
				stackMatched = prefixMatched
			}
		}
		matched[stack] = stackMatched

		if merge {
			oldToNew[stack] = newPrefix
		} else {
			oldToNew[stack] = b.add(newPrefix, st.Frame[stack])
		}
	}
	return updateThreadStacks(t, b.table, oldToNewLookup(oldToNew))
}

func mergeFunction(t *profile.Thread, fn int) *profile.Thread {
	st := &t.Stacks
	oldToNew := make([]int, st.Length)
	b := newStackBuilder(st.Length, false)
	for stack := 0; stack < st.Length; stack++ {
		prefix := st.Prefix[stack]
		newPrefix := profile.NoIndex
		if prefix != profile.NoIndex {
			newPrefix = oldToNew[prefix]
		}
		if t.StackFunc(stack) == fn {
			oldToNew[stack] = newPrefix
			continue
		}
		oldToNew[stack] = b.add(newPrefix, st.Frame[stack])
	}
	return updateThreadStacks(t, b.table, oldToNewLookup(oldToNew))
}

func dropFunction(t *profile.Thread, fn int) *profile.Thread {
	st := &t.Stacks
	contains := make([]bool, st.Length)
	for stack := 0; stack < st.Length; stack++ {
		prefix := st.Prefix[stack]
		contains[stack] = (prefix != profile.NoIndex && contains[prefix]) ||
			t.StackFunc(stack) == fn
	}
	out := t.Clone()
	out.Samples = mapSampleStacks(t.Samples, func(stack int) int {
		if contains[stack] {
			return profile.NoIndex
		}
		return stack
	})
	return out
}

func collapseDirectRecursion(t *profile.Thread, fn int) *profile.Thread {
	st := &t.Stacks
	oldToNew := make([]int, st.Length)
	recursive := make([]bool, st.Length)
	b := newStackBuilder(st.Length, false)
	for stack := 0; stack < st.Length; stack++ {
		prefix := st.Prefix[stack]
		newPrefix := profile.NoIndex
		if prefix != profile.NoIndex {
			newPrefix = oldToNew[prefix]
		}
		isFunc := t.StackFunc(stack) == fn
		if isFunc && prefix != profile.NoIndex && recursive[prefix] {
			oldToNew[stack] = newPrefix
		} else {
			oldToNew[stack] = b.add(newPrefix, st.Frame[stack])
		}
		recursive[stack] = isFunc
	}
	return updateThreadStacks(t, b.table, oldToNewLookup(oldToNew))
}

func collapseFunctionSubtree(t *profile.Thread, fn int) *profile.Thread {
	st := &t.Stacks
	oldToNew := make([]int, st.Length)
	collapsed := make([]bool, st.Length)
	b := newStackBuilder(st.Length, false)
	for stack := 0; stack < st.Length; stack++ {
		prefix := st.Prefix[stack]
		if prefix != profile.NoIndex && collapsed[prefix] {
			collapsed[stack] = true
			oldToNew[stack] = oldToNew[prefix]
			continue
		}
		newPrefix := profile.NoIndex
		if prefix != profile.NoIndex {
			newPrefix = oldToNew[prefix]
		}
		oldToNew[stack] = b.add(newPrefix, st.Frame[stack])
		collapsed[stack] = t.StackFunc(stack) == fn
	}
	return updateThreadStacks(t, b.table, oldToNewLookup(oldToNew))
}
