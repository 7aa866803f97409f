// Package server exposes the Lee Soon Sin game over WebSocket and HTTP.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, frame dispatch, routing, and HTTP handlers. The
// hub keeps one room per game session and implements game.Notifier, so the
// game service pushes state without knowing about connections.
package server
