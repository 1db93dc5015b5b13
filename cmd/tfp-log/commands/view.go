// Package commands implements the tfp-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/tfp-protocol/tfp-go/pkg/log"
	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

// RunView prints the events of path matching filter.
func RunView(path string, filter log.Filter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [conn:id] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	layer := event.Layer.String()
	if event.Category == log.CategoryControl {
		layer = "CTRL"
	}
	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s\n", ts, shortenConnID(event.ConnectionID), event.Direction.String(), layer, eventLabel(event))

	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.Packet != nil:
		formatPacketDetails(w, event.Packet)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}
	if event.RemoteAddr != "" && event.Category == log.CategoryControl {
		fmt.Fprintf(w, "  Remote: %s\n", event.RemoteAddr)
	}

	fmt.Fprintln(w)
}

func eventLabel(event log.Event) string {
	switch {
	case event.Frame != nil:
		return "Frame"
	case event.Packet != nil:
		return event.Packet.Type.String()
	case event.StateChange != nil:
		return "State"
	case event.ControlMsg != nil:
		return event.ControlMsg.Type.String()
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(frame.Data))
		if frame.Truncated {
			fmt.Fprintf(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatPacketDetails(w io.Writer, pkt *log.PacketEvent) {
	fmt.Fprintf(w, "  UID: %s (%d)  Function: %d  Seq: %d  Length: %d\n",
		wire.Base58Encode(pkt.UID), pkt.UID, pkt.FunctionID, pkt.SequenceNumber, pkt.Length)
	if pkt.ResponseExpected {
		fmt.Fprintln(w, "  Response expected")
	}
	if pkt.ErrorCode != 0 {
		fmt.Fprintf(w, "  Error code: %d\n", pkt.ErrorCode)
	}
	if len(pkt.Payload) > 0 {
		fmt.Fprintf(w, "  Payload: %s\n", hex.EncodeToString(pkt.Payload))
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *err.Code)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}
