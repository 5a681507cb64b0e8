// Package server exposes the HTTP API: session control, voice activity and
// audio frame ingest, and monitoring endpoints including Prometheus metrics.
package server
