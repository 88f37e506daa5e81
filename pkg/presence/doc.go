// Package presence tracks which users have a live realtime connection.
//
// Memory serves single-node deployments and tests; Redis shares the counters
// between nodes. Both count connections, so a user with two open tabs stays
// online until the last one closes.
package presence
