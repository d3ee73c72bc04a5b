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

package protocol

import (
	"github.com/hashicorp/go-multierror"

	"github.com/packwright/packwright/internal/capbuf"
	"github.com/packwright/packwright/internal/render"
	"github.com/packwright/packwright/internal/store"
)

// Driver walks a frame's dissector chain (C4): starting at the tag
// derived from container link-type, it repeatedly invokes the registered
// dissector for the current tag until one returns "none" or an error.
type Driver struct {
	reg *Registry
}

// NewDriver builds a driver against reg. Passing nil uses the default,
// process-wide registry.
func NewDriver(reg *Registry) *Driver {
	if reg == nil {
		reg = defaultRegistry
	}
	return &Driver{reg: reg}
}

// Dissect runs the parse chain for one frame, starting at startTag and
// reading from the buffer range [frame.DataStart, frame.DataEnd). A tag
// with no registered dissector ends the chain without a warning or a
// status change; frame.Info is set from lastNonEmpty(frame.Info, tag). A
// dissector whose Parse returns an error ends the chain, marks the frame
// ERROR and has that error appended to frame.Warnings. Dissect itself
// always returns nil.
func (d *Driver) Dissect(ctx *store.Context, frame *store.Frame, startTag store.Tag) error {
	r := ctx.Buffer().NewReader(frame.DataStart, frame.DataEnd)
	tag := startTag
	var warnings *multierror.Error

	for tag != store.TagNone {
		dis, ok := d.reg.Get(tag)
		if !ok {
			frame.Info = lastNonEmpty(frame.Info, string(tag))
			break
		}
		frame.ParsedProtocols = append(frame.ParsedProtocols, tag)

		next, err := dis.Parse(ctx, frame, r)
		if err != nil {
			if frame.Status < store.StatusError {
				frame.Status = store.StatusError
			}
			warnings = multierror.Append(warnings, err)
			break
		}
		tag = next
	}

	if warnings != nil {
		for _, e := range warnings.Errors {
			frame.Warnings = append(frame.Warnings, e.Error())
		}
	}
	return nil
}

// DetailTree rebuilds the Field tree for one frame by re-running the
// chain's Detail step from scratch. Idempotent: it never touches ctx or
// frame beyond reading them.
func (d *Driver) DetailTree(ctx *store.Context, frame *store.Frame) *render.Field {
	root := render.New("frame", frame.DataStart, frame.DataEnd-frame.DataStart)
	if len(frame.ParsedProtocols) == 0 {
		return root
	}

	r := ctx.Buffer().NewReader(frame.DataStart, frame.DataEnd)
	for _, tag := range frame.ParsedProtocols {
		dis, ok := d.reg.Get(tag)
		if !ok {
			break
		}
		dis.Detail(root, ctx, frame, r)
	}
	return root
}

func lastNonEmpty(existing, fallback string) string {
	if existing != "" {
		return existing
	}
	return fallback
}
