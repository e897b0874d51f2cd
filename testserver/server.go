// Package testserver provides a stand-in crossword target: an
// httptest-friendly implementation of the five endpoints a journey or a
// replayed trace exercises, with optional injected latency and failure
// rate for exercising this module's own retry/threshold behavior without
// needing a real puzzle service to point at.
package testserver

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"
)

// Config controls the fault injection every endpoint applies uniformly.
type Config struct {
	// DelayMs, if positive, is applied before every response is written.
	DelayMs int
	// FailRate, 0-100, is the percentage of requests answered with 500
	// instead of the endpoint's normal response.
	FailRate int
}

// Server is a configurable stand-in crossword target.
type Server struct {
	cfg       Config
	mux       *http.ServeMux
	playCount atomic.Int64
}

// NewServer builds a Server with no injected faults.
func NewServer() *Server {
	return NewServerWithConfig(Config{})
}

// NewServerWithConfig builds a Server with the given fault-injection
// settings.
func NewServerWithConfig(cfg Config) *Server {
	s := &Server{cfg: cfg, mux: http.NewServeMux()}
	s.registerHandlers()
	return s
}

// Handler returns the http.Handler serving every endpoint.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("/date-picker", s.handleDatePicker)
	s.mux.HandleFunc("/postPickerStatus", s.handlePickerStatus)
	s.mux.HandleFunc("/crossword", s.handleCrossword)
	s.mux.HandleFunc("/api/v1/plays", s.handlePlays)
	s.mux.HandleFunc("/api/v1/puzzles", s.handlePuzzles)
}

// inject applies the configured delay and, if the dice roll fails,
// answers with a 500 and reports true so the caller returns immediately.
func (s *Server) inject(w http.ResponseWriter) (failed bool) {
	if s.cfg.DelayMs > 0 {
		time.Sleep(time.Duration(s.cfg.DelayMs) * time.Millisecond)
	}
	if s.cfg.FailRate > 0 && rand.Intn(100) < s.cfg.FailRate {
		http.Error(w, "simulated failure", http.StatusInternalServerError)
		return true
	}
	return false
}

// paramsEnvelope wraps a base64-encoded JSON blob the way the real
// target's date-picker/crossword pages embed state for a browser to read
// out of a <script> tag.
func paramsEnvelope(field, payload string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(payload))
	return fmt.Sprintf(`<html><body><script id="params" type="application/json">{"%s":"%s"}</script></body></html>`, field, encoded)
}

func (s *Server) handleDatePicker(w http.ResponseWriter, r *http.Request) {
	if s.inject(w) {
		return
	}
	uid := r.URL.Query().Get("uid")
	payload := fmt.Sprintf(`{"loadToken":"tok-%s"}`, uid)
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, paramsEnvelope("rawsps", payload))
}

func (s *Server) handlePickerStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.inject(w) {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":0}`)
}

func (s *Server) handleCrossword(w http.ResponseWriter, r *http.Request) {
	if s.inject(w) {
		return
	}
	uid := r.URL.Query().Get("uid")
	payload := fmt.Sprintf(`{"playId":"play-%s","score":0,"timeOnPage":5000,"timeTaken":5}`, uid)
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprint(w, paramsEnvelope("rawp", payload))
}

func (s *Server) handlePlays(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.inject(w) {
		return
	}
	s.playCount.Add(1)
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":0}`)
}

func (s *Server) handlePuzzles(w http.ResponseWriter, r *http.Request) {
	if s.inject(w) {
		return
	}
	id := r.URL.Query().Get("id")
	set := r.URL.Query().Get("set")
	resp := map[string]any{
		"id":  id,
		"set": set,
		"puzzles": []map[string]any{
			{"id": id, "title": "Daily Crossword", "publishDate": time.Now().UTC().Format("2006-01-02")},
		},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// PlayCount returns the number of successful /api/v1/plays posts served
// so far, for tests asserting on request volume.
func (s *Server) PlayCount() int64 {
	return s.playCount.Load()
}

// DatePickerURL and CrosswordURL build request URLs against this server
// the same way internal/journey constructs them, for tests that want to
// exercise the server directly rather than through a Journey.
func DatePickerURL(base, series, uid string) string {
	return fmt.Sprintf("%sdate-picker?set=%s&uid=%s", base, url.QueryEscape(series), url.QueryEscape(uid))
}

func CrosswordURL(base, puzzleID, series, uid, loadToken string) string {
	src := DatePickerURL(base, series, uid)
	return fmt.Sprintf("%scrossword?id=%s&set=%s&picker=date-picker&src=%s&uid=%s&loadToken=%s",
		base, url.QueryEscape(puzzleID), url.QueryEscape(series), url.QueryEscape(src),
		url.QueryEscape(uid), url.QueryEscape(loadToken))
}
