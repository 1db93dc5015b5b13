// Package connection provides connection lifecycle primitives for TFP.
//
// This package handles:
//   - A FIFO task queue that serialises connect, disconnect,
//     auto-reconnect and authenticate operations
//   - Exponential backoff with jitter between auto-reconnect attempts
//   - The engine's connection state enum
//
// # Task Queue
//
// Lifecycle operations never overlap. Each task runs when it reaches the
// head of the queue and pops itself when finished, which starts the next
// task. A disconnect requested while an auto-reconnect is waiting removes
// that auto-reconnect instead of queueing behind it.
//
// # Reconnection Strategy
//
// When a connection is lost, auto-reconnect attempts are spaced by:
//
//  1. Initial delay: 2 seconds
//  2. Exponential increase: 4s, 8s, 16s, 32s
//  3. Maximum delay: 60 seconds
//  4. Continue at 60s until successful
//  5. Reset to 2s on successful reconnection
//
// # Jitter
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
package connection
