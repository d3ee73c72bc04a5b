package protocol

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packwright/packwright/internal/capbuf"
	"github.com/packwright/packwright/internal/render"
	"github.com/packwright/packwright/internal/store"
)

func newTestFrame(start, end uint64) *store.Frame {
	return &store.Frame{DataStart: start, DataEnd: end, Properties: map[string]string{}}
}

func TestDissectWalksChainUntilTagNone(t *testing.T) {
	reg := NewRegistry()
	reg.Register("outer", Dissector{
		Parse: func(ctx *store.Context, frame *store.Frame, r *capbuf.Reader) (store.Tag, error) {
			frame.SetProperty("outer", "seen")
			return "inner", nil
		},
	})
	reg.Register("inner", Dissector{
		Parse: func(ctx *store.Context, frame *store.Frame, r *capbuf.Reader) (store.Tag, error) {
			frame.SetProperty("inner", "seen")
			return store.TagNone, nil
		},
	})

	buf := capbuf.NewBuffer()
	buf.Append(make([]byte, 16))
	ctx := store.NewContext(buf)
	frame := newTestFrame(0, 16)

	d := NewDriver(reg)
	err := d.Dissect(ctx, frame, "outer")
	require.NoError(t, err)

	assert.Equal(t, "seen", frame.Properties["outer"])
	assert.Equal(t, "seen", frame.Properties["inner"])
	assert.Equal(t, []store.Tag{"outer", "inner"}, frame.ParsedProtocols)
	assert.Equal(t, store.StatusOK, frame.Status)
}

func TestDissectStopsAtUnknownTagWithoutError(t *testing.T) {
	reg := NewRegistry()
	reg.Register("known", Dissector{
		Parse: func(ctx *store.Context, frame *store.Frame, r *capbuf.Reader) (store.Tag, error) {
			return "unregistered", nil
		},
	})

	buf := capbuf.NewBuffer()
	buf.Append(make([]byte, 4))
	ctx := store.NewContext(buf)
	frame := newTestFrame(0, 4)

	d := NewDriver(reg)
	err := d.Dissect(ctx, frame, "known")
	require.NoError(t, err)
	assert.Equal(t, "unregistered", frame.Info)
	assert.Equal(t, store.StatusOK, frame.Status)
}

func TestDissectMarksFrameErrorOnParseFailure(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("malformed layer")
	reg.Register("bad", Dissector{
		Parse: func(ctx *store.Context, frame *store.Frame, r *capbuf.Reader) (store.Tag, error) {
			return store.TagNone, boom
		},
	})

	buf := capbuf.NewBuffer()
	buf.Append(make([]byte, 4))
	ctx := store.NewContext(buf)
	frame := newTestFrame(0, 4)

	d := NewDriver(reg)
	err := d.Dissect(ctx, frame, "bad")
	require.NoError(t, err) // Dissect itself never returns an error; it's folded into frame state
	assert.Equal(t, store.StatusError, frame.Status)
	require.Len(t, frame.Warnings, 1)
	assert.Contains(t, frame.Warnings[0], "malformed layer")
}

func TestDetailTreeRebuildsFromParsedProtocols(t *testing.T) {
	reg := NewRegistry()
	reg.Register("outer", Dissector{
		Parse: func(ctx *store.Context, frame *store.Frame, r *capbuf.Reader) (store.Tag, error) {
			return "inner", nil
		},
		Detail: func(parent *render.Field, ctx *store.Context, frame *store.Frame, r *capbuf.Reader) store.Tag {
			parent.Add("Outer Layer", frame.DataStart, 4)
			return store.TagNone
		},
	})
	reg.Register("inner", Dissector{
		Parse: func(ctx *store.Context, frame *store.Frame, r *capbuf.Reader) (store.Tag, error) {
			return store.TagNone, nil
		},
		Detail: func(parent *render.Field, ctx *store.Context, frame *store.Frame, r *capbuf.Reader) store.Tag {
			parent.Add("Inner Layer", frame.DataStart+4, 4)
			return store.TagNone
		},
	})

	buf := capbuf.NewBuffer()
	buf.Append(make([]byte, 16))
	ctx := store.NewContext(buf)
	frame := newTestFrame(0, 16)

	d := NewDriver(reg)
	require.NoError(t, d.Dissect(ctx, frame, "outer"))

	tree := d.DetailTree(ctx, frame)
	require.Len(t, tree.Children, 2)
	assert.Equal(t, "Outer Layer", tree.Children[0].Summary)
	assert.Equal(t, "Inner Layer", tree.Children[1].Summary)
}

func TestDefaultRegistryRegisterAndGet(t *testing.T) {
	Register("test-driver-tag", Dissector{})
	d, ok := Default().Get("test-driver-tag")
	require.True(t, ok)
	assert.NotNil(t, d)

	_, ok = Default().Get("never-registered-tag")
	assert.False(t, ok)
}
