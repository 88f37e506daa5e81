// Package notifications stores in-app notifications and pushes them to the
// recipient's live connections.
//
// # Architecture
//
//   - Storage: persistence and lookups (MemoryStorage here, Postgres in chatstore)
//   - Publisher: realtime fan-out to notification sockets and the event stream
//   - Manager: stores first, then publishes
//
// # Basic Usage
//
//	fanout := realtime.NewFanout(nil, nil)
//	manager := notifications.NewManager(notifications.NewMemoryStorage(), fanout)
//
//	n, err := manager.Send(ctx, notifications.Notification{
//	    RecipientID: 42,
//	    Type:        notifications.TypeSystem,
//	    Title:       "Welcome",
//	    Message:     "Your account is ready",
//	})
//
// Every successful Send pushes notification_created and unread_count_updated
// to the "notifications_<user id>" group and the user's stream mailbox.
// MarkRead pushes notification_read followed by the unread count.
//
// # Error policy
//
// Storage errors are returned wrapped in ErrStorage. Delivery is attempted
// once: an offline recipient or a failed unread count is logged and counted
// (see Manager.Stats) and the stored notification remains the source of truth
// for the next listing.
//
// Manager implements realtime.Notifier, so a chat message raises a "message"
// notification with its content shortened to 100 characters. A failure there
// never fails the chat message.
package notifications
