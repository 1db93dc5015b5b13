package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/tfp-protocol/tfp-go/pkg/log"
)

// RunExport exports the log file to the specified format. The raw format
// writes the captured wire packets back to back as a TFP byte stream.
func RunExport(path, format, output string) error {
	switch format {
	case "jsonl", "csv", "raw":
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv, raw)", format)
	}

	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "csv":
		return exportCSV(reader, w)
	case "raw":
		return exportRaw(reader, w)
	default:
		return exportJSONL(reader, w)
	}
}

func exportRaw(reader *log.Reader, w io.Writer) error {
	for {
		_, pkt, err := reader.NextPacket()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if _, err := w.Write(pkt.Bytes()); err != nil {
			return fmt.Errorf("failed to write packet: %w", err)
		}
	}
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "connection_id", "direction", "layer", "category", "uid", "type", "function_id", "sequence"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		var fid, seq string
		if event.Packet != nil {
			fid = strconv.Itoa(int(event.Packet.FunctionID))
			seq = strconv.Itoa(int(event.Packet.SequenceNumber))
		}

		row := []string{
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z"),
			event.ConnectionID,
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			event.DeviceUID,
			eventLabel(event),
			fid,
			seq,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
}
