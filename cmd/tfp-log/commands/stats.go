package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/tfp-protocol/tfp-go/pkg/log"
)

// Stats holds aggregate statistics about a capture file.
type Stats struct {
	FormatVersion     uint8
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	PacketsByType     map[log.PacketType]int
	Devices           map[string]*DeviceStats
	Connections       map[string]*ConnectionStats
	Probes            int
	Enumerates        int
	DeviceErrors      int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// DeviceStats holds packet counts for one device UID.
type DeviceStats struct {
	Requests  int
	Responses int
	Callbacks int
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	FirstSeen  time.Time
	LastSeen   time.Time
	Events     int
	RemoteAddr string
}

// Collect reads every event of path into a Stats.
func Collect(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		PacketsByType:     make(map[log.PacketType]int),
		Devices:           make(map[string]*DeviceStats),
		Connections:       make(map[string]*ConnectionStats),
		FormatVersion:     reader.Header().Version,
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return stats, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	conn, ok := s.Connections[event.ConnectionID]
	if !ok {
		conn = &ConnectionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Connections[event.ConnectionID] = conn
	}
	conn.Events++
	if event.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = event.Timestamp
	}
	if conn.RemoteAddr == "" {
		conn.RemoteAddr = event.RemoteAddr
	}

	if pkt := event.Packet; pkt != nil {
		s.PacketsByType[pkt.Type]++
		if pkt.ErrorCode != 0 {
			s.DeviceErrors++
		}
		if event.DeviceUID != "" {
			dev, ok := s.Devices[event.DeviceUID]
			if !ok {
				dev = &DeviceStats{}
				s.Devices[event.DeviceUID] = dev
			}
			switch pkt.Type {
			case log.PacketTypeRequest:
				dev.Requests++
			case log.PacketTypeResponse:
				dev.Responses++
			case log.PacketTypeCallback:
				dev.Callbacks++
			}
		}
	}

	if ctl := event.ControlMsg; ctl != nil {
		switch ctl.Type {
		case log.ControlMsgDisconnectProbe:
			s.Probes++
		case log.ControlMsgEnumerate:
			s.Enumerates++
		}
	}

	if event.Error != nil {
		s.Errors++
	}
}

// RunStats analyzes the capture and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := Collect(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== TFP Protocol Capture Statistics ===")
	fmt.Fprintf(w, "File format: v%d\n", stats.FormatVersion)
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerEngine} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryMessage, log.CategoryControl, log.CategoryState, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Packets:")
	for _, typ := range []log.PacketType{log.PacketTypeRequest, log.PacketTypeResponse, log.PacketTypeCallback} {
		if count := stats.PacketsByType[typ]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", typ.String()+":", count)
		}
	}
	if stats.DeviceErrors > 0 {
		fmt.Fprintf(w, "  %-12s %d\n", "ERROR CODE:", stats.DeviceErrors)
	}
	fmt.Fprintln(w)

	if len(stats.Devices) > 0 {
		uids := make([]string, 0, len(stats.Devices))
		for uid := range stats.Devices {
			uids = append(uids, uid)
		}
		sort.Strings(uids)

		fmt.Fprintf(w, "Devices: %d\n", len(uids))
		for _, uid := range uids {
			d := stats.Devices[uid]
			fmt.Fprintf(w, "  %-8s %d requests, %d responses, %d callbacks\n", uid, d.Requests, d.Responses, d.Callbacks)
		}
		fmt.Fprintln(w)
	}

	if stats.Probes > 0 || stats.Enumerates > 0 {
		fmt.Fprintf(w, "Control: %d probes, %d enumerates\n", stats.Probes, stats.Enumerates)
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		type connInfo struct {
			id    string
			stats *ConnectionStats
		}
		conns := make([]connInfo, 0, len(stats.Connections))
		for id, cs := range stats.Connections {
			conns = append(conns, connInfo{id, cs})
		}
		sort.Slice(conns, func(i, j int) bool {
			return conns[i].stats.FirstSeen.Before(conns[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, c := range conns {
			duration := c.stats.LastSeen.Sub(c.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenConnID(c.id), c.stats.Events, duration)
			if c.stats.RemoteAddr != "" {
				fmt.Fprintf(w, "           Remote: %s\n", c.stats.RemoteAddr)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
