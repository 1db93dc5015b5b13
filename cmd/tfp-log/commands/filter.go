package commands

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tfp-protocol/tfp-go/pkg/log"
)

// FilterOptions holds the filter flags shared by view and filter.
type FilterOptions struct {
	ConnID     string
	UID        string
	FunctionID int
	TimeStart  string
	TimeEnd    string
	Layer      string
	Direction  string
	Category   string
}

// Register binds the options to fs.
func (o *FilterOptions) Register(fs *flag.FlagSet) {
	fs.StringVar(&o.ConnID, "conn-id", "", "Filter by connection ID")
	fs.StringVar(&o.UID, "uid", "", "Filter by device UID (base58)")
	fs.IntVar(&o.FunctionID, "fid", -1, "Filter packets by function ID")
	fs.StringVar(&o.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&o.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&o.Layer, "layer", "", "Filter by layer (transport, wire, engine)")
	fs.StringVar(&o.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&o.Category, "category", "", "Filter by category (message, control, state, error)")
}

// Build converts the options into a log.Filter.
func (o FilterOptions) Build() (log.Filter, error) {
	filter := log.Filter{
		ConnectionID: o.ConnID,
		DeviceUID:    o.UID,
	}

	if o.FunctionID >= 0 {
		if o.FunctionID > 255 {
			return log.Filter{}, fmt.Errorf("invalid function ID: %d", o.FunctionID)
		}
		fid := uint8(o.FunctionID)
		filter.FunctionID = &fid
	}

	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}

	if o.Layer != "" {
		l, err := parseLayer(o.Layer)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Layer = &l
	}
	if o.Direction != "" {
		d, err := parseDirection(o.Direction)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Direction = &d
	}
	if o.Category != "" {
		c, err := parseCategory(o.Category)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Category = &c
	}
	return filter, nil
}

// RunFilter copies the events of path matching filter to output and
// returns how many were written.
func RunFilter(path, output string, filter log.Filter) (int, error) {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Close()
			return logger.Written(), fmt.Errorf("failed to read event: %w", err)
		}
		logger.Log(event)
	}
	if err := logger.Close(); err != nil {
		return logger.Written(), fmt.Errorf("failed to write %s: %w", output, err)
	}
	return logger.Written(), nil
}

func parseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "wire":
		return log.LayerWire, nil
	case "engine":
		return log.LayerEngine, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, wire, or engine)", s)
	}
}

func parseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

func parseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "control":
		return log.CategoryControl, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, control, state, or error)", s)
	}
}
