// Package timeouts defines shared timeout constants used across the
// service. Centralizing these values keeps the durations discoverable and
// prevents drift between the server and its background workers.
package timeouts

import "time"

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// Narrative caps the time allowed for one session-summary narrative
// request to the language model.
const Narrative = 30 * time.Second
