// Package ipcon implements the TFP client connection engine.
//
// An IPConnection owns one TCP connection to a daemon that multiplexes
// many devices. It provides:
//   - Request/response correlation by function ID and sequence number,
//     with a per-request timeout
//   - Chunked streams in both directions, serialised per function
//   - Reassembly of chunked (high-level) callbacks
//   - The enumerate broadcast and its callback
//   - A lifecycle task queue for connect, disconnect, auto-reconnect
//     and authentication
//
// # Concurrency
//
// All engine state lives on a single event-loop goroutine. Public methods
// post work to it and return immediately; results arrive through the
// onSuccess and onError callbacks, which also run on the loop. The
// *Context variants block the caller and must not be used from inside
// such a callback.
//
// # Errors
//
// Errors delivered to callbacks are *wire.Error values. Match them with
// errors.Is against the sentinels in package wire:
//
//	if errors.Is(err, wire.ErrTimeout) { ... }
//
// # Usage
//
//	conn := ipcon.New(ipcon.DefaultConfig())
//	defer conn.Close()
//
//	if err := conn.ConnectContext(ctx, "localhost", 4223); err != nil {
//	    return err
//	}
//	values, err := conn.Request(ctx, dev, ipcon.Call{...})
package ipcon
