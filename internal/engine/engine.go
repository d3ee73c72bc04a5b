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

package engine

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/packwright/packwright/common"
	"github.com/packwright/packwright/internal/capbuf"
	"github.com/packwright/packwright/internal/demux"
	"github.com/packwright/packwright/internal/protocol"
	"github.com/packwright/packwright/internal/pubsub"
	"github.com/packwright/packwright/internal/query"
	"github.com/packwright/packwright/internal/store"
	"github.com/packwright/packwright/server"
)

// Event is what Engine publishes on its bus while loading a file and
// what /watch relays to long-polling clients.
type Event struct {
	Kind    string `json:"kind"` // "progress", "done", "error"
	Message string `json:"message"`
	Frames  int    `json:"frames,omitempty"`
}

// Engine owns one loaded capture's Context and the query/HTTP surface
// built on top of it. Grounded on controller.Controller, generalized
// from "own a live sniffer" to "own one already-loaded file".
type Engine struct {
	path      string
	buildInfo common.BuildInfo

	ctx    *store.Context
	driver *protocol.Driver
	query  *query.Store

	bus *pubsub.PubSub
	svr *server.Server

	loadedAt time.Time
}

// New opens path, decompressing transparently when it ends in .gz, reads
// it to completion through the demux/C3-C4/flow pipeline, and returns a
// ready-to-query Engine. This is an offline, single-shot load: unlike a
// live sniffer's streaming Append/Next loop, EOF on the source file is
// treated as the terminal frame boundary rather than "wait for more".
func New(path string, info common.BuildInfo) (*Engine, error) {
	e := &Engine{
		path:      path,
		buildInfo: info,
		bus:       pubsub.New(),
	}
	recordBuildInfo(info)

	buf, err := loadBuffer(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", path)
	}

	d, err := demux.New(buf)
	if err != nil {
		return nil, errors.Wrapf(err, "sniffing container format of %s", path)
	}

	ctx := store.NewContext(buf)
	ctx.AttachDemuxer(d)
	ctx.RefreshMeta()

	driver := protocol.NewDriver(protocol.Default())

	started := time.Now()
	n, ingestErr := e.ingest(ctx, d, driver)

	// Frames parsed before a truncation or mid-chain error stay queryable
	// (spec.md E6): the Engine is still returned, with ingestErr reported
	// alongside it so a CLI caller can choose its exit code while a
	// long-lived server caller can keep serving the partial Context.
	e.ctx = ctx
	e.driver = driver
	e.query = query.New(ctx, driver)
	e.loadedAt = time.Now()

	recordDrops(ctx)
	loadDuration.Set(time.Since(started).Seconds())
	activeConnections.Set(float64(len(ctx.Tracker().Connections())))

	if ingestErr != nil {
		e.bus.Publish(Event{Kind: "error", Message: ingestErr.Error(), Frames: n})
		return e, ingestErr
	}

	e.bus.Publish(Event{Kind: "done", Message: "load complete", Frames: n})
	return e, nil
}

// ingest drains every frame the demuxer can produce. Buffer holds the
// whole file up front (loadBuffer already read it to EOF), so
// capbuf.ErrEndOfStream from Next means "no more frames", not "wait for
// more bytes", matching the offline loading model.
func (e *Engine) ingest(ctx *store.Context, d *demux.Demuxer, driver *protocol.Driver) (int, error) {
	n := 0
	for {
		raw, err := d.Next()
		if err != nil {
			if errors.Is(err, capbuf.ErrEndOfStream) {
				if d.Cursor() < ctx.Buffer().End() {
					// Whole file is already in the Buffer (no further Append
					// is coming); a stalled cursor short of the end means a
					// record was cut off mid-stream rather than ending
					// cleanly on a record boundary. Frames committed so far
					// stay intact, per spec.md E6.
					return n, demux.ErrTruncated
				}
				return n, nil
			}
			return n, errors.Wrap(err, "demuxing frame")
		}

		frame := store.NewFrame(raw)
		ctx.AppendFrame(frame)
		if derr := driver.Dissect(ctx, frame, store.Tag(raw.LinkType.StartTag())); derr != nil {
			// Dissect already marked frame.Status; a warning is enough
			// here, the per-frame detail is visible through FrameDetail.
			e.publishProgress("dissect warning on frame %d: %v", frame.Index, derr)
		}
		framesParsed.WithLabelValues(frame.Status.String()).Inc()
		n++

		if n%1000 == 0 {
			e.publishProgress("parsed %d frames", n)
		}
	}
}

func (e *Engine) publishProgress(format string, args ...any) {
	e.bus.Publish(Event{Kind: "progress", Message: fmt.Sprintf(format, args...)})
}

func recordDrops(ctx *store.Context) {
	var dropped int
	for _, c := range ctx.Tracker().Connections() {
		if c.Lossy {
			dropped++
		}
	}
	if dropped > 0 {
		reassemblyDrops.Add(float64(dropped))
	}
}

// loadBuffer reads path fully into a capbuf.Buffer, decompressing gzip
// transparently for .pcap.gz/.pcapng.gz inputs.
func loadBuffer(path string) (*capbuf.Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "opening gzip stream")
		}
		defer gz.Close()
		r = gz
	}

	buf := capbuf.NewBuffer()
	chunk := make([]byte, common.ReadWriteBlockSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			cp := make([]byte, n)
			copy(cp, chunk[:n])
			buf.Append(cp)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, errors.Wrap(err, "reading capture data")
		}
	}
	return buf, nil
}

// Context returns the loaded Context, for callers that need direct C1-C9
// access rather than the paged query surface.
func (e *Engine) Context() *store.Context { return e.ctx }

// Query returns the C10 paged/filtered read surface over the loaded file.
func (e *Engine) Query() *query.Store { return e.query }

// Bus returns the event bus progress/done/error events are published on.
func (e *Engine) Bus() *pubsub.PubSub { return e.bus }

// Path returns the source file path this Engine was loaded from.
func (e *Engine) Path() string { return e.path }

// LoadedAt returns when this Engine finished loading.
func (e *Engine) LoadedAt() time.Time { return e.loadedAt }
