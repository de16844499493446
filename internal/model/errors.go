package model

import "errors"

// Failure taxonomy. None of these are fatal: every failure degrades to a
// stale but consistent local view.
var (
	// ErrTransportUnavailable means there is no live socket connection.
	// Outbound intents are not queued; the REST path repairs state on recovery.
	ErrTransportUnavailable = errors.New("transport unavailable")

	// ErrSendFailed means the REST send was rejected or the request errored.
	ErrSendFailed = errors.New("send failed")

	// ErrFetchFailed means a page or list fetch errored; the view stays at
	// its last-known-good state.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrStaleResponse means a response arrived for a selection that is no
	// longer active. Discarded silently, never surfaced.
	ErrStaleResponse = errors.New("stale response")
)
