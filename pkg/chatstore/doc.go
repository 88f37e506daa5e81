// Package chatstore persists conversations, messages, receipts and
// notifications.
//
// Postgres runs on a pgx pool and ships its goose schema in Migrations.
// Memory keeps everything in process for development and tests. Both
// implement the realtime store interfaces, so the socket and HTTP handlers
// never see SQL.
//
// Receipt updates never overwrite a stored timestamp, and marking a message
// read also marks it delivered.
package chatstore
