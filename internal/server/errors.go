// Package server classifies handler failures into the coded error frames the
// protocol surfaces to clients.
package server

// Error codes carried in error frames. Errors go to the originating
// connection only; no error is fatal to the process.
const (
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodePersistenceError = "PERSISTENCE_ERROR"
	CodeValidationError  = "VALIDATION_ERROR"
)
