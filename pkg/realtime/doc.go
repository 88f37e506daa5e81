// Package realtime delivers marketplace events to connected clients.
//
// Two transports share one process-local core:
//
//   - Socket sessions (gorilla/websocket) join broadcast groups on a Bus:
//     "chat_<conversation id>" for a conversation and
//     "notifications_<user id>" for a user's notification feed.
//   - Server-Sent Event streams drain a per-user Mailbox held by a Registry.
//     A mailbox keeps at most DefaultMailboxCapacity events and evicts the
//     oldest on overflow.
//
// Fanout bundles the registry and the bus so domain code can Publish to a
// user or Broadcast to a group without knowing which transport is connected.
//
// Every socket is accepted before it is authenticated. Failures are reported
// with close frames: 4001 for a bad credential, 4003 for a conversation the
// user may not join and 1012 when the service shuts down. Session progress is
// tracked by a Lifecycle state machine:
//
//	connecting -> authenticating -> joining -> active -> closing -> closed
//	                    \______________\______-> rejected
//
// Active sessions get a ping every heartbeat interval; the ticker stops as
// soon as the session leaves the active state.
//
// Tracker applies delivered and read receipts. Receipts only move forward
// (sent, delivered, read) and stored timestamps are never replaced.
//
// Nothing here survives a restart. Clients reconnect and reload history over
// the REST API.
package realtime
