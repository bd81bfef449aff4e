// Package httpserver wraps net/http.Server with address validation,
// configurable timeouts and graceful shutdown. It serves the admin API.
package httpserver
