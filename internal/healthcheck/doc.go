// Package healthcheck actively probes services that expose a health
// endpoint. Every probe runs through the service's circuit, so failing
// probes count as failures and probes against an open circuit are rejected
// until its retry time, when they become half-open trials.
package healthcheck
