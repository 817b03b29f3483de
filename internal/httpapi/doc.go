// Package httpapi provides the HTTP API for repaird.
//
// It exposes the diagnostic session operations (start, answer,
// feedback, audit trail) under /v1, a health check and the prometheus
// metrics endpoint. The API speaks structured input only; symptom
// extraction from raw text happens in external collaborators.
package httpapi
