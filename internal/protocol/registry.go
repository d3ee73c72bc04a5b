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

// Package protocol holds the tag-to-dissector registry (C3) and the
// dissector-chain driver (C4). Individual protocol dissectors live in
// sibling packages and register themselves here from an init() func, the
// same pattern packetd uses for its per-L7-protocol connection pools.
package protocol

import (
	"sync"

	"github.com/packwright/packwright/internal/capbuf"
	"github.com/packwright/packwright/internal/render"
	"github.com/packwright/packwright/internal/store"
)

// ParseFunc mutates ctx/frame state for one layer and names the next tag.
// It must fully consume, or advance the reader's cursor past, this
// layer's bytes.
type ParseFunc func(ctx *store.Context, frame *store.Frame, r *capbuf.Reader) (store.Tag, error)

// DetailFunc rebuilds this layer's Field node under parent and names the
// next tag. It must not mutate ctx or frame.
type DetailFunc func(parent *render.Field, ctx *store.Context, frame *store.Frame, r *capbuf.Reader) store.Tag

// Dissector is one protocol layer's entry in the registry.
type Dissector struct {
	Parse  ParseFunc
	Detail DetailFunc
}

// Registry maps a tag to its dissector.
type Registry struct {
	mu    sync.RWMutex
	table map[store.Tag]Dissector
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{table: make(map[store.Tag]Dissector)}
}

// Register adds or replaces the dissector for tag.
func (r *Registry) Register(tag store.Tag, d Dissector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table[tag] = d
}

// Get returns the dissector registered for tag, if any.
func (r *Registry) Get(tag store.Tag) (Dissector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.table[tag]
	return d, ok
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry every dissector package
// registers itself into via init().
func Default() *Registry { return defaultRegistry }

// Register adds d to the default registry under tag.
func Register(tag store.Tag, d Dissector) { defaultRegistry.Register(tag, d) }
