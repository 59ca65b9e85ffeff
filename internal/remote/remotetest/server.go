// Package remotetest provides an in-process fake of the remote CRM for tests.
package remotetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// Server is a fake CRM serving /clients and /clients/{id}.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	records   []map[string]any
	details   map[string]map[string]any
	statuses  map[int][]int
	detailErr map[string][]int
	listPages []int
	detailIDs []string
	headers   []http.Header

	// Envelope wraps the page records; defaults to {"data": {"list": records}}.
	Envelope func(records []map[string]any) any
}

// New starts a fake CRM holding recs.
func New(recs ...map[string]any) *Server {
	s := &Server{
		records:   recs,
		details:   make(map[string]map[string]any),
		statuses:  make(map[int][]int),
		detailErr: make(map[string][]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// SetRecords replaces the remote record set.
func (s *Server) SetRecords(recs ...map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = recs
}

// SetDetail registers the detail payload returned for id.
func (s *Server) SetDetail(id string, rec map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.details[id] = rec
}

// FailPage queues status codes returned for page before it succeeds.
func (s *Server) FailPage(page int, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[page] = append(s.statuses[page], statuses...)
}

// FailDetail queues status codes returned for the detail of id before it succeeds.
func (s *Server) FailDetail(id string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detailErr[id] = append(s.detailErr[id], statuses...)
}

// ListPages returns the page parameter of every list call, in order.
func (s *Server) ListPages() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.listPages...)
}

// DetailIDs returns the id of every detail call, in order.
func (s *Server) DetailIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.detailIDs...)
}

// Headers returns the headers of every request received.
func (s *Server) Headers() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]http.Header(nil), s.headers...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers = append(s.headers, r.Header.Clone())

	path := strings.TrimPrefix(r.URL.Path, "/clients")
	if id := strings.TrimPrefix(path, "/"); id != "" {
		s.handleDetail(w, id)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	s.listPages = append(s.listPages, page)

	if queued := s.statuses[page]; len(queued) > 0 {
		s.statuses[page] = queued[1:]
		w.WriteHeader(queued[0])
		_, _ = w.Write([]byte(`{"error":"try later"}`))
		return
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 100
	}
	start := min((page-1)*limit, len(s.records))
	end := min(start+limit, len(s.records))
	chunk := s.records[start:end]

	var body any = map[string]any{"data": map[string]any{"list": chunk}}
	if s.Envelope != nil {
		body = s.Envelope(chunk)
	}
	writeJSON(w, body)
}

func (s *Server) handleDetail(w http.ResponseWriter, id string) {
	s.detailIDs = append(s.detailIDs, id)

	if queued := s.detailErr[id]; len(queued) > 0 {
		s.detailErr[id] = queued[1:]
		w.WriteHeader(queued[0])
		return
	}

	rec, ok := s.details[id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"data": rec})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
