package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/tfp-protocol/tfp-go/pkg/bricklet/rs485"
	"github.com/tfp-protocol/tfp-go/pkg/bricklet/temperature"
	"github.com/tfp-protocol/tfp-go/pkg/ipcon"
	"github.com/tfp-protocol/tfp-go/pkg/wire"
)

// Shell is the interactive command loop around one IPConnection.
type Shell struct {
	conn *ipcon.IPConnection
	out  io.Writer

	host string
	port int

	// opTimeout bounds each blocking command.
	opTimeout time.Duration

	temps  map[string]*temperature.Bricklet
	serial map[string]*rs485.Bricklet
}

// NewShell wires the connection callbacks to out and registers the
// configured devices.
func NewShell(conn *ipcon.IPConnection, cfg Config, out io.Writer) (*Shell, error) {
	s := &Shell{
		conn:      conn,
		out:       out,
		host:      cfg.Host,
		port:      cfg.Port,
		opTimeout: 10 * time.Second,
		temps:     make(map[string]*temperature.Bricklet),
		serial:    make(map[string]*rs485.Bricklet),
	}

	for _, d := range cfg.Devices {
		if err := s.addDevice(d); err != nil {
			return nil, err
		}
	}

	conn.OnConnected(func(reason ipcon.ConnectReason) {
		fmt.Fprintf(s.out, "connected (%s)\n", reason)
	})
	conn.OnDisconnected(func(reason ipcon.DisconnectReason) {
		fmt.Fprintf(s.out, "disconnected (%s)\n", reason)
	})
	conn.OnEnumerate(func(e ipcon.Enumeration) {
		fmt.Fprintf(s.out, "%-14s uid=%s connected=%s position=%c hw=%d.%d.%d fw=%d.%d.%d device=%d\n",
			e.EnumerationType, e.UID, e.ConnectedUID, e.Position,
			e.HardwareVersion[0], e.HardwareVersion[1], e.HardwareVersion[2],
			e.FirmwareVersion[0], e.FirmwareVersion[1], e.FirmwareVersion[2],
			e.DeviceIdentifier)
	})
	return s, nil
}

func (s *Shell) addDevice(d DeviceEntry) error {
	switch d.Type {
	case DeviceTypeTemperature:
		b, err := temperature.New(d.UID, s.conn)
		if err != nil {
			return err
		}
		b.OnTemperature(func(t int16) {
			fmt.Fprintf(s.out, "%s: %.2f °C\n", d.Name, float64(t)/100)
		})
		s.temps[d.Name] = b
	case DeviceTypeRS485:
		b, err := rs485.New(d.UID, s.conn)
		if err != nil {
			return err
		}
		b.OnRead(func(m []wire.Char) {
			if m == nil {
				fmt.Fprintf(s.out, "%s: message lost\n", d.Name)
				return
			}
			fmt.Fprintf(s.out, "%s: %q\n", d.Name, charsToString(m))
		})
		s.serial[d.Name] = b
	default:
		return fmt.Errorf("unknown device type %q", d.Type)
	}
	return nil
}

// Run reads commands until quit or EOF.
func (s *Shell) Run(rl *readline.Instance) {
	s.printHelp()
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			return
		}
		if s.Execute(line) {
			return
		}
	}
}

// Execute runs one command line and reports whether the shell should exit.
func (s *Shell) Execute(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	var err error
	switch cmd {
	case "help", "?":
		s.printHelp()
	case "connect":
		err = s.cmdConnect(args)
	case "disconnect":
		err = s.withTimeout(s.conn.DisconnectContext)
	case "enumerate", "enum":
		s.conn.Enumerate(func(err error) { fmt.Fprintf(s.out, "enumerate: %v\n", err) })
	case "auth":
		err = s.cmdAuth(args)
	case "timeout":
		err = s.cmdTimeout(args)
	case "autoreconnect":
		err = s.cmdAutoReconnect(args)
	case "state":
		s.cmdState()
	case "devices":
		s.cmdDevices()
	case "temp":
		err = s.cmdTemp(args)
	case "write":
		err = s.cmdWrite(args)
	case "read":
		err = s.cmdRead(args)
	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
TFP Shell Commands:
  Connection:
    connect [host [port]]  - Connect to the daemon
    disconnect             - Disconnect
    auth <secret>          - Authenticate the connection
    state                  - Show connection state and settings
    timeout <ms>           - Set the response timeout
    autoreconnect on|off   - Toggle automatic reconnects

  Devices:
    enumerate              - Ask all devices to announce themselves
    devices                - List configured devices
    temp <name>            - Read a temperature Bricklet
    write <name> <text>    - Send text through an RS485 Bricklet
    read <name> <length>   - Read from an RS485 Bricklet

  General:
    help                   - Show this help
    quit                   - Exit`)
}

func (s *Shell) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.opTimeout)
}

func (s *Shell) withTimeout(fn func(context.Context) error) error {
	ctx, cancel := s.context()
	defer cancel()
	return fn(ctx)
}

func (s *Shell) cmdConnect(args []string) error {
	if len(args) > 0 {
		s.host = args[0]
	}
	if len(args) > 1 {
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid port %q", args[1])
		}
		s.port = port
	}
	return s.withTimeout(func(ctx context.Context) error {
		return s.conn.ConnectContext(ctx, s.host, s.port)
	})
}

func (s *Shell) cmdAuth(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: auth <secret>")
	}
	if err := s.withTimeout(func(ctx context.Context) error {
		return s.conn.AuthenticateContext(ctx, args[0])
	}); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "authenticated")
	return nil
}

func (s *Shell) cmdTimeout(args []string) error {
	if len(args) != 1 {
		fmt.Fprintf(s.out, "timeout: %s\n", s.conn.Timeout())
		return nil
	}
	ms, err := strconv.Atoi(args[0])
	if err != nil || ms <= 0 {
		return fmt.Errorf("invalid timeout %q", args[0])
	}
	s.conn.SetTimeout(time.Duration(ms) * time.Millisecond)
	return nil
}

func (s *Shell) cmdAutoReconnect(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: autoreconnect on|off")
	}
	switch strings.ToLower(args[0]) {
	case "on":
		s.conn.SetAutoReconnect(true)
	case "off":
		s.conn.SetAutoReconnect(false)
	default:
		return fmt.Errorf("usage: autoreconnect on|off")
	}
	return nil
}

func (s *Shell) cmdState() {
	fmt.Fprintf(s.out, "state:          %s (%s)\n", s.conn.ConnectionState(), s.conn.State())
	fmt.Fprintf(s.out, "address:        %s:%d\n", s.host, s.port)
	fmt.Fprintf(s.out, "timeout:        %s\n", s.conn.Timeout())
	fmt.Fprintf(s.out, "auto-reconnect: %t\n", s.conn.AutoReconnect())
}

func (s *Shell) cmdDevices() {
	var lines []string
	for name, b := range s.temps {
		lines = append(lines, fmt.Sprintf("%-12s %-12s %s", name, DeviceTypeTemperature, b.Device().UIDString()))
	}
	for name, b := range s.serial {
		lines = append(lines, fmt.Sprintf("%-12s %-12s %s", name, DeviceTypeRS485, b.Device().UIDString()))
	}
	if len(lines) == 0 {
		fmt.Fprintln(s.out, "no devices configured")
		return
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Fprintln(s.out, l)
	}
}

func (s *Shell) cmdTemp(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: temp <name>")
	}
	b, ok := s.temps[args[0]]
	if !ok {
		return fmt.Errorf("no temperature Bricklet named %q", args[0])
	}
	ctx, cancel := s.context()
	defer cancel()
	t, err := b.GetTemperature(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s: %.2f °C\n", args[0], float64(t)/100)
	return nil
}

func (s *Shell) cmdWrite(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: write <name> <text>")
	}
	b, ok := s.serial[args[0]]
	if !ok {
		return fmt.Errorf("no RS485 Bricklet named %q", args[0])
	}
	ctx, cancel := s.context()
	defer cancel()
	n, err := b.WriteString(ctx, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "written: %d\n", n)
	return nil
}

func (s *Shell) cmdRead(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: read <name> <length>")
	}
	b, ok := s.serial[args[0]]
	if !ok {
		return fmt.Errorf("no RS485 Bricklet named %q", args[0])
	}
	length, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		return fmt.Errorf("invalid length %q", args[1])
	}
	ctx, cancel := s.context()
	defer cancel()
	m, err := b.Read(ctx, uint16(length))
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%q\n", charsToString(m))
	return nil
}

func charsToString(chars []wire.Char) string {
	b := make([]byte, len(chars))
	for i, c := range chars {
		b[i] = byte(c)
	}
	return string(b)
}
