// Package handler implements the admin HTTP API of the resilience manager:
// listing circuits, inspecting one, and opening, closing, resetting or
// removing it by hand.
package handler
