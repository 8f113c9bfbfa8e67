// Package server implements the HTTP status API exposing session
// statistics, configuration and Prometheus metrics.
package server
