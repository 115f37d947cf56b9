// Package httpserver exposes the assignment, tracking, and experiment
// administration API over HTTP/JSON, plus health and Prometheus metrics
// endpoints.
package httpserver
