/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

// Package logger wraps logrus the way nabbar-golib/logger does: callers take
// a FuncLog indirection instead of a *logrus.Entry, so a config reload can
// swap the backing logger without invalidating references held deeper in
// the pipeline (a connection, a session, an analyser).
package logger

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// FuncLog returns the logger to use right now. Packages in this module take
// a FuncLog rather than a *logrus.Entry so the logger can be swapped (level
// change, output change) without invalidating references held by sessions
// that were created before the swap.
type FuncLog func() *logrus.Entry

// Fields are the fixed structured-log keys the core pipeline attaches.
// Not every field is set on every line; zero values are omitted by callers.
const (
	FieldSession  = "session_id"
	FieldFrontend = "frontend"
	FieldBackend  = "backend"
	FieldServer   = "server"
	FieldFD       = "fd"
	FieldAnalyser = "analyser"
	FieldSnErr    = "sn_err"
	FieldSnFinst  = "sn_finst"
)

// Default returns a FuncLog bound to a new logrus logger (each call builds
// its own) configured with a text formatter, mirroring the teacher's zero-config
// fallback used before a real configuration is loaded.
func Default() FuncLog {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	entry := logrus.NewEntry(l)

	return func() *logrus.Entry {
		return entry
	}
}

// holder lets a config layer atomically swap the underlying entry that a
// previously handed-out FuncLog will return on its next call.
type holder struct {
	mu sync.RWMutex
	e  *logrus.Entry
}

// NewSwappable returns a FuncLog plus a setter; once a reconfigure path
// calls the setter, every already-captured FuncLog
// picks up the new entry on its next invocation.
func NewSwappable(initial *logrus.Entry) (FuncLog, func(*logrus.Entry)) {
	h := &holder{e: initial}

	get := func() *logrus.Entry {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return h.e
	}

	set := func(e *logrus.Entry) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.e = e
	}

	return get, set
}

// WithSession returns a log entry pre-populated with the fixed session
// fields used across the connection/HTTP pipeline. Empty strings are
// dropped so a partially-initialized session does not spam blank fields.
func WithSession(fn FuncLog, sessionID, frontend, backend, server string) *logrus.Entry {
	e := fn()
	fields := logrus.Fields{}

	if sessionID != "" {
		fields[FieldSession] = sessionID
	}
	if frontend != "" {
		fields[FieldFrontend] = frontend
	}
	if backend != "" {
		fields[FieldBackend] = backend
	}
	if server != "" {
		fields[FieldServer] = server
	}

	if len(fields) == 0 {
		return e
	}
	return e.WithFields(fields)
}
