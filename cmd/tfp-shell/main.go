// Command tfp-shell is an interactive client for a brick daemon.
//
// It opens one IP connection, registers the devices named in the config
// file, and accepts commands from a readline prompt.
//
// Usage:
//
//	tfp-shell [flags]
//
// Flags:
//
//	-config string        YAML config file
//	-host string          Daemon host (default "localhost")
//	-port int             Daemon port (default 4223)
//	-secret string        Authenticate with this secret after connecting
//	-timeout duration     Response timeout (default 2.5s)
//	-auto-reconnect       Reconnect after a lost connection (default true)
//	-log-level string     debug, info, warn or error (default "info")
//	-protocol-log string  File path for protocol event logging (CBOR format)
//
// Example config:
//
//	host: 192.168.1.20
//	secret: my-secret
//	devices:
//	  - name: outside
//	    uid: ZQR
//	    type: temperature
//	  - name: bus
//	    uid: Xyz
//	    type: rs485
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/chzyer/readline"

	"github.com/tfp-protocol/tfp-go/pkg/ipcon"
	tfplog "github.com/tfp-protocol/tfp-go/pkg/log"
)

var (
	configPath    = flag.String("config", "", "YAML config file")
	host          = flag.String("host", "localhost", "Daemon host")
	port          = flag.Int("port", 4223, "Daemon port")
	secret        = flag.String("secret", "", "Authenticate with this secret after connecting")
	timeout       = flag.Duration("timeout", ipcon.DefaultTimeout, "Response timeout")
	autoReconnect = flag.Bool("auto-reconnect", true, "Reconnect after a lost connection")
	logLevel      = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	protocolLog   = flag.String("protocol-log", "", "File path for protocol event logging (CBOR format)")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	applyFlags(&cfg)
	if err := cfg.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// applyFlags copies the explicitly set flags over cfg.
func applyFlags(cfg *Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = *host
		case "port":
			cfg.Port = *port
		case "secret":
			cfg.Secret = *secret
		case "timeout":
			cfg.Timeout = *timeout
		case "auto-reconnect":
			cfg.AutoReconnect = *autoReconnect
		case "log-level":
			cfg.LogLevel = *logLevel
		case "protocol-log":
			cfg.ProtocolLog = *protocolLog
		}
	})
}

func run(cfg Config) error {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	connCfg := ipcon.DefaultConfig()
	connCfg.Timeout = cfg.Timeout
	connCfg.AutoReconnect = cfg.AutoReconnect
	connCfg.Logger = logger

	var loggers []tfplog.Logger
	if cfg.ProtocolLog != "" {
		fileLogger, err := tfplog.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			return fmt.Errorf("create protocol log: %w", err)
		}
		defer fileLogger.Close()
		loggers = append(loggers, fileLogger)
		logger.Info("protocol logging enabled", "path", cfg.ProtocolLog)
	}
	if level == slog.LevelDebug {
		loggers = append(loggers, tfplog.NewSlogAdapter(logger))
	}
	connCfg.ProtocolLogger = tfplog.Combine(loggers...)

	conn := ipcon.New(connCfg)
	defer conn.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tfp> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	shell, err := NewShell(conn, cfg, rl.Stdout())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout+10*time.Second)
	if err := conn.ConnectContext(ctx, cfg.Host, cfg.Port); err != nil {
		// The shell stays usable; connect can be retried from the prompt.
		logger.Warn("connect failed", "host", cfg.Host, "port", cfg.Port, "error", err)
	} else if cfg.Secret != "" {
		if err := conn.AuthenticateContext(ctx, cfg.Secret); err != nil {
			logger.Warn("authentication failed", "error", err)
		}
	}
	cancel()

	shell.Run(rl)
	return nil
}
