// Copyright 2025 The packwright Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package render builds the UI-facing field tree (C9): a summary string
// plus a byte range plus nested children, assembled on demand from a
// frame's recorded byte ranges. Rebuilding a tree is idempotent and never
// mutates parse state.
package render

import "fmt"

// Field is one node of the detail-view tree for a single frame.
type Field struct {
	Summary   string
	Start     uint64
	Len       uint64
	Children  []*Field
}

// New starts a field node covering [start,start+n).
func New(summary string, start, n uint64) *Field {
	return &Field{Summary: summary, Start: start, Len: n}
}

// Add appends and returns a child node.
func (f *Field) Add(summary string, start, n uint64) *Field {
	child := New(summary, start, n)
	f.Children = append(f.Children, child)
	return child
}

// Addf appends a child node with a formatted summary.
func (f *Field) Addf(start, n uint64, format string, args ...any) *Field {
	return f.Add(fmt.Sprintf(format, args...), start, n)
}

// Tree is the root returned to a UI for one frame.
type Tree struct {
	Root *Field
}

// NewTree wraps a root field as the tree handed back by frame(index).
func NewTree(root *Field) *Tree { return &Tree{Root: root} }
