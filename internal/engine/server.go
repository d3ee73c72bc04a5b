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
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/packwright/packwright/common"
	"github.com/packwright/packwright/confengine"
	"github.com/packwright/packwright/internal/query"
	"github.com/packwright/packwright/internal/sigs"
	"github.com/packwright/packwright/logger"
	"github.com/packwright/packwright/server"
)

var errInvalidIndex = errors.New("engine: invalid index path parameter")

func routeVar(r *http.Request, key string) string {
	return mux.Vars(r)[key]
}

// Serve builds the Server from conf's "server" section, registers every
// route, wires it onto e and serves; it returns nil without serving when
// that section is disabled. Grounded on
// controller.Controller.setupServer, generalized from the sniffer's
// metrics/admin-only surface to the full C10 query surface.
func (e *Engine) Serve(conf *confengine.Config) error {
	svr, err := server.New(conf)
	if err != nil {
		return err
	}
	if svr == nil {
		return nil
	}
	e.svr = svr
	e.setupRoutes()
	return svr.ListenAndServe()
}

func (e *Engine) setupRoutes() {
	// Admin routes
	e.svr.RegisterPostRoute("/-/logger", e.routeLogger)
	e.svr.RegisterPostRoute("/-/reload", e.routeReload)

	// Watch route: long-polls the bus for progress/done/error events.
	e.svr.RegisterGetRoute("/watch", e.routeWatch)

	// Metrics
	e.svr.RegisterGetRoute("/metrics", e.routeMetrics)

	// C10 query routes
	e.svr.RegisterGetRoute("/stat/{field}", e.routeStat)
	e.svr.RegisterGetRoute("/frames", e.routeFrameList)
	e.svr.RegisterGetRoute("/frames/{index}", e.routeFrameDetail)
	e.svr.RegisterGetRoute("/conversations", e.routeConversationList)
	e.svr.RegisterGetRoute("/conversations/{index}/connections", e.routeConnectionList)
	e.svr.RegisterGetRoute("/http", e.routeHttpList)
	e.svr.RegisterGetRoute("/http/{index}", e.routeHttpDetail)
	e.svr.RegisterGetRoute("/dns", e.routeDnsList)
	e.svr.RegisterGetRoute("/tls", e.routeTlsList)
	e.svr.RegisterGetRoute("/tls/{index}", e.routeTlsDetail)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.WriteHeader(status)
	writeJSON(w, map[string]string{"error": err.Error()})
}

// queryInt and pathInt read request values through common.Options rather
// than strconv directly: both sources are loose strings (empty, padded,
// float-shaped) and cast.ToIntE tolerates what Atoi rejects.
func queryInt(r *http.Request, key string, def int) int {
	opts := common.NewOptions()
	opts.Merge(key, r.URL.Query().Get(key))
	v, err := opts.GetInt(key)
	if err != nil {
		return def
	}
	return v
}

func pathInt(r *http.Request, key string) (int, bool) {
	opts := common.NewOptions()
	opts.Merge(key, routeVar(r, key))
	v, err := opts.GetInt(key)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (e *Engine) routeLogger(w http.ResponseWriter, r *http.Request) {
	logger.SetLoggerLevel(r.FormValue("level"))
	writeJSON(w, map[string]string{"status": "success"})
}

func (e *Engine) routeReload(w http.ResponseWriter, r *http.Request) {
	if err := sigs.SelfReload(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (e *Engine) routeMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (e *Engine) routeWatch(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return
	}

	maxMessage := queryInt(r, "max_message", 100)
	timeout, err := time.ParseDuration(r.URL.Query().Get("timeout"))
	if err != nil || timeout <= 0 {
		timeout = defaultWatchTimeout
	}

	queue := e.bus.Subscribe(10)
	defer e.bus.Unsubscribe(queue)

	for i := 0; i < maxMessage; i++ {
		data, ok := queue.PopTimeout(timeout)
		if !ok {
			return
		}
		b, err := json.Marshal(data)
		if err != nil {
			continue
		}
		w.Write(b)
		w.Write([]byte{'\n'})
		flusher.Flush()
	}
}

func (e *Engine) routeStat(w http.ResponseWriter, r *http.Request) {
	n, err := e.query.Stat(routeVar(r, "field"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, map[string]int{"value": n})
}

func (e *Engine) routeFrameList(w http.ResponseWriter, r *http.Request) {
	start := queryInt(r, "start", 0)
	length := queryInt(r, "length", 100)
	page, err := e.query.FrameList(start, length, r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, page)
}

func (e *Engine) routeFrameDetail(w http.ResponseWriter, r *http.Request) {
	index, ok := pathInt(r, "index")
	if !ok {
		writeError(w, http.StatusBadRequest, errInvalidIndex)
		return
	}
	field, err := e.query.FrameDetail(index)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, field)
}

func (e *Engine) routeConversationList(w http.ResponseWriter, r *http.Request) {
	start := queryInt(r, "start", 0)
	length := queryInt(r, "length", 100)
	page := e.query.ConversationList(start, length, r.URL.Query().Get("ip"))
	writeJSON(w, page)
}

func (e *Engine) routeConnectionList(w http.ResponseWriter, r *http.Request) {
	convIdx, ok := pathInt(r, "index")
	if !ok {
		writeError(w, http.StatusBadRequest, errInvalidIndex)
		return
	}
	start := queryInt(r, "start", 0)
	length := queryInt(r, "length", 100)
	page, err := e.query.ConnectionList(convIdx, start, length)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, page)
}

func (e *Engine) routeHttpList(w http.ResponseWriter, r *http.Request) {
	start := queryInt(r, "start", 0)
	length := queryInt(r, "length", 100)
	ascending := r.URL.Query().Get("order") == "asc"
	page := e.query.HttpList(start, length, r.URL.Query().Get("host"), ascending)
	writeJSON(w, page)
}

func (e *Engine) routeHttpDetail(w http.ResponseWriter, r *http.Request) {
	index, ok := pathInt(r, "index")
	if !ok {
		writeError(w, http.StatusBadRequest, errInvalidIndex)
		return
	}
	detail, err := e.query.HttpDetail(index)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, httpDetailJSON(detail))
}

// httpDetailJSON flattens query.HttpDetail's error fields to strings;
// the error interface values pkg/errors produces have no exported
// fields for encoding/json to find.
type httpDetailView struct {
	RequestHeaders  string
	RequestBody     []byte
	RequestBodyErr  string `json:",omitempty"`
	ResponseHeaders string
	ResponseBody    []byte
	ResponseBodyErr string `json:",omitempty"`
	ContentType     string
	LatencyUS       int64
}

func httpDetailJSON(d query.HttpDetail) httpDetailView {
	v := httpDetailView{
		RequestHeaders:  d.RequestHeaders,
		RequestBody:     d.RequestBody,
		ResponseHeaders: d.ResponseHeaders,
		ResponseBody:    d.ResponseBody,
		ContentType:     d.ContentType,
		LatencyUS:       d.LatencyUS,
	}
	if d.RequestBodyErr != nil {
		v.RequestBodyErr = d.RequestBodyErr.Error()
	}
	if d.ResponseBodyErr != nil {
		v.ResponseBodyErr = d.ResponseBodyErr.Error()
	}
	return v
}

func (e *Engine) routeDnsList(w http.ResponseWriter, r *http.Request) {
	start := queryInt(r, "start", 0)
	length := queryInt(r, "length", 100)
	ascending := r.URL.Query().Get("order") == "asc"
	writeJSON(w, e.query.DnsRecordList(start, length, ascending))
}

func (e *Engine) routeTlsList(w http.ResponseWriter, r *http.Request) {
	start := queryInt(r, "start", 0)
	length := queryInt(r, "length", 100)
	writeJSON(w, e.query.TlsList(start, length))
}

func (e *Engine) routeTlsDetail(w http.ResponseWriter, r *http.Request) {
	index, ok := pathInt(r, "index")
	if !ok {
		writeError(w, http.StatusBadRequest, errInvalidIndex)
		return
	}
	detail, err := e.query.TlsDetail(index)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, detail)
}
