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

package query

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/packwright/packwright/internal/flow"
	"github.com/packwright/packwright/internal/protocol"
	"github.com/packwright/packwright/internal/render"
	"github.com/packwright/packwright/internal/store"
)

// ErrNotAvailable is returned when a detail view asks for bytes the
// Buffer has already trimmed past.
var ErrNotAvailable = errors.New("query: range no longer available")

// Page is a contiguous O(1) slice of an ordered collection plus its total
// size, the shape every C10 list operation returns.
type Page[T any] struct {
	Items []T
	Total int
}

// Store is the C10 query surface: it holds no state of its own beyond a
// reference to the parsing Context and the chain driver needed to
// rebuild detail views on demand.
type Store struct {
	ctx    *store.Context
	driver *protocol.Driver
}

// New wraps ctx with the given (or default) dissector-chain driver.
func New(ctx *store.Context, driver *protocol.Driver) *Store {
	if driver == nil {
		driver = protocol.NewDriver(nil)
	}
	return &Store{ctx: ctx, driver: driver}
}

// ErrUnknownStat is returned by Stat for a field name it doesn't recognize.
var ErrUnknownStat = errors.New("query: unknown stat field")

// Stat answers the §6 command channel's Stat(field) request: a single
// named aggregate count over the loaded file, the same counters
// cmd/inspect.go prints as a summary.
func (s *Store) Stat(field string) (int, error) {
	switch field {
	case "frames":
		return len(s.ctx.Frames()), nil
	case "conversations":
		return len(s.ctx.Tracker().Conversations()), nil
	case "connections":
		return len(s.ctx.Tracker().Connections()), nil
	case "http_connections":
		return len(s.ctx.HttpConnects()), nil
	case "dns_records":
		return len(s.ctx.DnsRecords()), nil
	case "tls_conversations":
		return len(s.ctx.TlsConversations()), nil
	default:
		return 0, errors.Wrapf(ErrUnknownStat, "field %q", field)
	}
}

func clampRange(start, length, total int) (int, int) {
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := start + length
	if end > total {
		end = total
	}
	return start, end
}

// --- Frames --------------------------------------------------------------

// FrameInfo is the list-view projection of a Frame: no field tree.
type FrameInfo struct {
	Index       uint32
	TimestampUS int64
	Length      uint32
	Protocol    store.Tag
	Info        string
	Status      store.Status
}

func toFrameInfo(f *store.Frame) FrameInfo {
	proto := store.TagNone
	if n := len(f.ParsedProtocols); n > 0 {
		proto = f.ParsedProtocols[n-1]
	}
	return FrameInfo{
		Index:       f.Index,
		TimestampUS: f.Timestamp.UnixMicro(),
		Length:      f.OriginalLen,
		Protocol:    proto,
		Info:        f.Info,
		Status:      f.Status,
	}
}

// FrameList implements frames(start, len) with an optional filter
// expression evaluated against each frame's property side-table.
func (s *Store) FrameList(start, length int, filter string) (Page[FrameInfo], error) {
	expr, err := ParseFilter(filter)
	if err != nil {
		return Page[FrameInfo]{}, err
	}

	all := s.ctx.Frames()
	if expr == nil {
		from, to := clampRange(start, length, len(all))
		items := make([]FrameInfo, 0, to-from)
		for _, f := range all[from:to] {
			items = append(items, toFrameInfo(f))
		}
		return Page[FrameInfo]{Items: items, Total: len(all)}, nil
	}

	var matched []*store.Frame
	for _, f := range all {
		if expr.Evaluate(f.Properties) {
			matched = append(matched, f)
		}
	}
	from, to := clampRange(start, length, len(matched))
	items := make([]FrameInfo, 0, to-from)
	for _, f := range matched[from:to] {
		items = append(items, toFrameInfo(f))
	}
	return Page[FrameInfo]{Items: items, Total: len(matched)}, nil
}

// FrameDetail implements frame(index): it rebuilds the Field tree by
// re-running the chain's Detail step against this frame's buffer slice.
func (s *Store) FrameDetail(index int) (*render.Field, error) {
	f := s.ctx.Frame(uint32(index))
	if f == nil {
		return nil, errors.Errorf("query: no frame at index %d", index)
	}
	return s.driver.DetailTree(s.ctx, f), nil
}

// --- Conversations / Connections ---------------------------------------

type ConversationInfo struct {
	Index         int
	IPLo, IPHi    string
	ConnectionIDs []int
	Packets       uint64
	Bytes         uint64
}

func toConversationInfo(c *flow.Conversation) ConversationInfo {
	return ConversationInfo{
		Index:         c.ID,
		IPLo:          c.Key.IPLo.String(),
		IPHi:          c.Key.IPHi.String(),
		ConnectionIDs: append([]int(nil), c.ConnectionIDs...),
		Packets:       c.Packets,
		Bytes:         c.Bytes,
	}
}

// ConversationList implements conversations(start, len, filter:{ip?}).
func (s *Store) ConversationList(start, length int, ipFilter string) Page[ConversationInfo] {
	all := s.ctx.Tracker().Conversations()
	var filtered []*flow.Conversation
	for _, c := range all {
		if ipFilter == "" || c.Key.IPLo.String() == ipFilter || c.Key.IPHi.String() == ipFilter {
			filtered = append(filtered, c)
		}
	}
	from, to := clampRange(start, length, len(filtered))
	items := make([]ConversationInfo, 0, to-from)
	for _, c := range filtered[from:to] {
		items = append(items, toConversationInfo(c))
	}
	return Page[ConversationInfo]{Items: items, Total: len(filtered)}
}

type ConnectionInfo struct {
	Index          int
	ConversationID int
	PrimaryIP      string
	PrimaryPort    uint16
	SecondIP       string
	SecondPort     uint16
	State          string
	NextProtocol   string
	Lossy          bool
}

func nextProtoString(p flow.NextProtocol) string {
	switch p {
	case flow.ProtoHTTP:
		return "HTTP"
	case flow.ProtoTLS:
		return "TLS"
	default:
		return "Unknown"
	}
}

func toConnectionInfo(c *flow.Connection) ConnectionInfo {
	return ConnectionInfo{
		Index:          c.ID,
		ConversationID: c.ConversationID,
		PrimaryIP:      c.Primary.IP.String(),
		PrimaryPort:    c.Primary.Port,
		SecondIP:       c.Second.IP.String(),
		SecondPort:     c.Second.Port,
		State:          c.State.String(),
		NextProtocol:   nextProtoString(c.NextProtocol),
		Lossy:          c.Lossy,
	}
}

// ConnectionList implements connections(conversation_index, start, len).
func (s *Store) ConnectionList(conversationIndex, start, length int) (Page[ConnectionInfo], error) {
	conv := s.ctx.Tracker().Conversation(conversationIndex)
	if conv == nil {
		return Page[ConnectionInfo]{}, errors.Errorf("query: no conversation at index %d", conversationIndex)
	}
	from, to := clampRange(start, length, len(conv.ConnectionIDs))
	items := make([]ConnectionInfo, 0, to-from)
	for _, id := range conv.ConnectionIDs[from:to] {
		if c := s.ctx.Tracker().Connection(id); c != nil {
			items = append(items, toConnectionInfo(c))
		}
	}
	return Page[ConnectionInfo]{Items: items, Total: len(conv.ConnectionIDs)}, nil
}

// --- HTTP ---------------------------------------------------------------

type HttpInfo struct {
	ConnectIndex int
	Method       string
	Path         string
	Host         string
	StatusCode   int
	LatencyUS    int64
	TimestampUS  int64
}

// HttpList implements http_list(start, len, filter:{hostname?}, ascending).
func (s *Store) HttpList(start, length int, hostname string, ascending bool) Page[HttpInfo] {
	var all []*store.HttpConnect
	for _, hc := range s.ctx.HttpConnects() {
		if hostname != "" {
			req := s.ctx.HttpMessage(hc.RequestIdx)
			if req == nil || req.Host != hostname {
				continue
			}
		}
		all = append(all, hc)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if ascending {
			return all[i].RequestAt.Before(all[j].RequestAt)
		}
		return all[i].RequestAt.After(all[j].RequestAt)
	})

	from, to := clampRange(start, length, len(all))
	items := make([]HttpInfo, 0, to-from)
	for _, hc := range all[from:to] {
		info := HttpInfo{ConnectIndex: hc.Index, TimestampUS: hc.RequestAt.UnixMicro(), LatencyUS: hc.Latency.Microseconds()}
		if req := s.ctx.HttpMessage(hc.RequestIdx); req != nil {
			info.Method, info.Path, info.Host = req.Method, req.Path, req.Host
		}
		if hc.ResponseIdx >= 0 {
			if resp := s.ctx.HttpMessage(hc.ResponseIdx); resp != nil {
				info.StatusCode = resp.StatusCode
			}
		}
		items = append(items, info)
	}
	return Page[HttpInfo]{Items: items, Total: len(all)}
}

// HttpDetail implements http_detail(connect_index), rematerializing body
// bytes from the Buffer via the stored ranges. If a range has been
// trimmed, that part of the response is ErrNotAvailable instead of
// failing the whole detail view.
type HttpDetail struct {
	RequestHeaders  string
	RequestBody     []byte
	RequestBodyErr  error
	ResponseHeaders string
	ResponseBody    []byte
	ResponseBodyErr error
	ContentType     string
	LatencyUS       int64
}

func (s *Store) HttpDetail(connectIndex int) (HttpDetail, error) {
	hc := s.ctx.HttpConnect(connectIndex)
	if hc == nil {
		return HttpDetail{}, errors.Errorf("query: no http connect at index %d", connectIndex)
	}
	var detail HttpDetail
	detail.LatencyUS = hc.Latency.Microseconds()

	if req := s.ctx.HttpMessage(hc.RequestIdx); req != nil {
		detail.RequestHeaders = s.rematerializeHeaders(req)
		detail.RequestBody, detail.RequestBodyErr = s.rematerializeBody(req)
	}
	if hc.ResponseIdx >= 0 {
		if resp := s.ctx.HttpMessage(hc.ResponseIdx); resp != nil {
			detail.ResponseHeaders = s.rematerializeHeaders(resp)
			detail.ResponseBody, detail.ResponseBodyErr = s.rematerializeBody(resp)
			detail.ContentType = resp.ContentType
		}
	}
	return detail, nil
}

func (s *Store) rematerializeHeaders(m *store.HttpMessage) string {
	var out []byte
	for _, rng := range m.Headers {
		b, err := s.ctx.Buffer().Slice(rng.Start, rng.End)
		if err != nil {
			continue
		}
		out = append(out, b...)
	}
	return string(out)
}

func (s *Store) rematerializeBody(m *store.HttpMessage) ([]byte, error) {
	var out []byte
	for _, rng := range m.Body {
		b, err := s.ctx.Buffer().Slice(rng.Start, rng.End)
		if err != nil {
			return out, errors.Wrap(ErrNotAvailable, err.Error())
		}
		out = append(out, b...)
	}
	return out, nil
}

// --- DNS ------------------------------------------------------------------

type DnsInfo struct {
	Index   int
	Name    string
	Type    string
	Class   string
	TTL     uint32
	Content string
}

// DnsRecordList implements dns_records(start, len, ascending).
func (s *Store) DnsRecordList(start, length int, ascending bool) Page[DnsInfo] {
	all := append([]*store.DnsRecord(nil), s.ctx.DnsRecords()...)
	if !ascending {
		sort.SliceStable(all, func(i, j int) bool { return all[i].Index > all[j].Index })
	}
	from, to := clampRange(start, length, len(all))
	items := make([]DnsInfo, 0, to-from)
	for _, r := range all[from:to] {
		items = append(items, DnsInfo{Index: r.Index, Name: r.Name, Type: r.Type, Class: r.Class, TTL: r.TTL, Content: r.Content})
	}
	return Page[DnsInfo]{Items: items, Total: len(all)}
}

// --- TLS --------------------------------------------------------------

type TlsInfo struct {
	Index        int
	ConnectionID int
	SNI          string
	SelectedALPN string
}

// TlsList implements tls_list(start, len).
func (s *Store) TlsList(start, length int) Page[TlsInfo] {
	all := s.ctx.TlsConversations()
	from, to := clampRange(start, length, len(all))
	items := make([]TlsInfo, 0, to-from)
	for _, tc := range all[from:to] {
		info := TlsInfo{Index: tc.Index, ConnectionID: tc.ConnectionID}
		if tc.ClientHello != nil {
			info.SNI = tc.ClientHello.SNI
		}
		if tc.ServerHello != nil {
			info.SelectedALPN = tc.ServerHello.SelectedALPN
		}
		items = append(items, info)
	}
	return Page[TlsInfo]{Items: items, Total: len(all)}
}

// TlsDetail implements tls_detail for one connection: it returns that
// connection's full conversation record. It takes no paging arguments and
// returns no certificate page.
func (s *Store) TlsDetail(connectionIndex int) (*store.TlsConversation, error) {
	for _, tc := range s.ctx.TlsConversations() {
		if tc.ConnectionID == connectionIndex {
			return tc, nil
		}
	}
	return nil, errors.Errorf("query: no tls conversation for connection %d", connectionIndex)
}
