// Package scheduler dispatches work at precise wall-clock offsets: wave
// launches for synthetic load, and trace events for replayed traffic.
package scheduler

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
)

// TraceEvent is one line of a recorded-traffic trace, ordered by source
// timestamp with a delay relative to the previous event.
type TraceEvent struct {
	Index     int
	Timestamp int64
	Endpoint  string
	Method    string
	UserID    string
	DelayMs   int64
	Series    string
	PuzzleID  string
	Offset    string
	IsLastReq bool
}

type rawTraceEvent struct {
	Ts        int64   `json:"ts"`
	Endpoint  string  `json:"endpoint"`
	Method    string  `json:"method"`
	UserID    *string `json:"userId"`
	DelayMs   int64   `json:"delayMs"`
	Series    string  `json:"series"`
	PuzzleID  string  `json:"puzzleId"`
	Offset    string  `json:"offset"`
	IsLastReq int     `json:"isLastReq"`
}

// parseTraceLine decodes one JSONL line into a TraceEvent, silently
// rejecting malformed or incomplete lines per the wire format's tolerance
// for noisy logs. On success it stamps the event with index.
func parseTraceLine(line []byte, index int) (TraceEvent, bool) {
	if len(bytes.TrimSpace(line)) == 0 {
		return TraceEvent{}, false
	}
	var raw rawTraceEvent
	if err := json.Unmarshal(line, &raw); err != nil {
		return TraceEvent{}, false
	}
	if raw.Endpoint == "" {
		return TraceEvent{}, false
	}
	method := raw.Method
	if method == "" {
		method = "GET"
	}
	ev := TraceEvent{
		Index:     index,
		Timestamp: raw.Ts,
		Endpoint:  raw.Endpoint,
		Method:    method,
		DelayMs:   raw.DelayMs,
		Series:    raw.Series,
		PuzzleID:  raw.PuzzleID,
		Offset:    raw.Offset,
		IsLastReq: raw.IsLastReq != 0,
	}
	if raw.UserID != nil {
		ev.UserID = *raw.UserID
	}
	return ev, true
}

// ReadTrace parses every line of r into a TraceEvent slice, for traces
// small enough to hold entirely in memory before scheduling begins.
func ReadTrace(r io.Reader) ([]TraceEvent, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var events []TraceEvent
	index := 0
	for scanner.Scan() {
		ev, ok := parseTraceLine(scanner.Bytes(), index)
		if !ok {
			continue
		}
		events = append(events, ev)
		index++
	}
	if err := scanner.Err(); err != nil {
		return events, err
	}
	return events, nil
}

// UniqueUsers returns the distinct non-empty user identifiers referenced by
// events, in first-seen order, for the pre-warm phase ahead of replay.
func UniqueUsers(events []TraceEvent) []string {
	seen := make(map[string]bool, len(events))
	var users []string
	for _, ev := range events {
		if ev.UserID == "" || seen[ev.UserID] {
			continue
		}
		seen[ev.UserID] = true
		users = append(users, ev.UserID)
	}
	return users
}
