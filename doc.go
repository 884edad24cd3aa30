// Package dialogue provides a realtime event-routing server: rooms,
// per-(client, room) event subscriptions, and a validated trigger pipeline
// fanning out JSON payloads to subscribed participants.
//
// It is designed around one long-lived Server wrapping a room registry, a
// client registry, a shared bounded history store, and a protocol
// dispatcher, driven by whatever bidirectional transport the caller wires
// in — package transport ships a gorilla/websocket-backed default.
//
// # Features
//
//   - Rooms with capacity limits, per-event allow-lists, and creator-only
//     deletion
//   - Per-(client, room) event subscriptions, including a wildcard
//   - A synchronous validate/beforeEach/fan-out/history/afterEach pipeline
//   - Bounded in-memory history per (room, event) with FIFO eviction and an
//     external-storage pagination fallback
//   - A hook system for authentication, join permission, and event
//     transformation
//
// # Quick Start
//
//	server := dialogue.NewServer(dialogue.WithServerLogger(log))
//
//	message, _ := dialogue.DefineEvent("message")
//	room, _ := server.CreateRoom("lobby", "Lobby", dialogue.WithRoomEvents(message))
//
//	client := server.HandleConnect(transport, authPayload)
//	server.HandleMessage(ctx, client, rawFrame)
//
// # Rooms and subscriptions
//
// A client joins a room, then subscribes to one or more event names within
// it (or the wildcard "*" for all of them). Only subscribed participants
// receive a given trigger's fan-out.
//
//	client.Join("lobby")
//	client.Subscribe("lobby", "message")
//
// # Triggering events
//
// Both clients (over the wire) and the server itself (via Server.Trigger)
// drive the same pipeline: allow-list check, validation, the beforeEach
// hook, fan-out, history push, then afterEach.
//
//	server.Trigger("lobby", "message", map[string]any{"text": "hi"}, nil)
//
// # History
//
// Events whose definition enables history are retained in a bounded FIFO
// per (room, event name) and are readable newest-first, with an optional
// fallback to external storage for ranges the in-memory buffer no longer
// covers.
//
//	events := room.History(ctx, "message", 0, 50)
//
// # Hooks
//
// AuthHooks, SocketHooks, ClientHooks, and EventHooks let the embedding
// application authenticate connections, gate joins, and observe or
// transform triggered events without the core depending on any of it
// directly.
//
// # Thread Safety
//
// All exported types are safe for concurrent use. Hooks and server-local
// handlers registered through Room.On run fire-and-forget in their own
// goroutine except where a hook's contract explicitly states it runs
// synchronously on the trigger path (beforeEach, afterEach, beforeJoin).
package dialogue
