// Package server implements the realtime presence and messaging core behind
// the livechat widget: connection registry, room directory, typing tracker,
// broadcast routing, and the WebSocket transport that feeds them.
//
// The implementation is organized into specialized files for configuration,
// hub coordination, clients, routing, and HTTP handlers to keep the codebase
// maintainable and testable as the project grows.
package server
