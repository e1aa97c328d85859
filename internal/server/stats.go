package server

import (
	"sync/atomic"
	"time"
)

// Stats holds server-wide counters. Sessions update them concurrently.
type Stats struct {
	started time.Time

	activeConns   atomic.Int64
	totalConns    atomic.Int64
	commands      atomic.Int64
	errors        atomic.Int64
	uploads       atomic.Int64
	downloads     atomic.Int64
	deletes       atomic.Int64
	bytesUploaded atomic.Int64
	bytesIn       atomic.Int64
	bytesOut      atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Uptime            string `json:"uptime"`
	ActiveConnections int64  `json:"active_connections"`
	TotalConnections  int64  `json:"total_connections"`
	Commands          int64  `json:"commands"`
	Errors            int64  `json:"errors"`
	Uploads           int64  `json:"uploads"`
	Downloads         int64  `json:"downloads"`
	Deletes           int64  `json:"deletes"`
	BytesUploaded     int64  `json:"bytes_uploaded"`
	BytesIn           int64  `json:"bytes_in"`
	BytesOut          int64  `json:"bytes_out"`
}

func newStats() *Stats {
	return &Stats{started: time.Now()}
}

func (s *Stats) connOpened() {
	s.activeConns.Add(1)
	s.totalConns.Add(1)
}

func (s *Stats) connClosed() {
	s.activeConns.Add(-1)
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Uptime:            time.Since(s.started).Round(time.Second).String(),
		ActiveConnections: s.activeConns.Load(),
		TotalConnections:  s.totalConns.Load(),
		Commands:          s.commands.Load(),
		Errors:            s.errors.Load(),
		Uploads:           s.uploads.Load(),
		Downloads:         s.downloads.Load(),
		Deletes:           s.deletes.Load(),
		BytesUploaded:     s.bytesUploaded.Load(),
		BytesIn:           s.bytesIn.Load(),
		BytesOut:          s.bytesOut.Load(),
	}
}

// Stats returns the live counters.
func (s *Server) Stats() StatsSnapshot {
	return s.stats.Snapshot()
}
