package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/mbocsi/athub/config"
	"github.com/mbocsi/athub/mcp"
	"github.com/mbocsi/athub/server"
	"github.com/mbocsi/athub/services"
	"github.com/mbocsi/athub/store"
	"github.com/mbocsi/athub/web"
)

const version = "0.2.0"

var (
	configPath string
	logLevel   string
)

func init() {
	flag.StringVar(&configPath, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		slog.Error("athub gateway failed", "error", err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, err := config.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	opts := server.GatewayOptions{SaveInterval: cfg.State.SaveInterval}
	if cfg.State.Path != "" {
		opts.Store = store.New(cfg.State.Path)
	}
	if cfg.MDNS.Enabled {
		opts.Advertise = cfg.MDNS.Instance
	}
	var mcpServer *mcp.MCPServer
	if cfg.MCP.Enabled {
		mcpServer = mcp.NewMCPServer(cfg.MCP.Name, version)
		opts.MCPServer = mcpServer
	}
	gateway := server.NewGateway(opts)

	if err := registerTransports(gateway, cfg); err != nil {
		return err
	}

	serviceManager := services.NewServiceManager(gateway.Coordinator(), cfg.Poll.Timeout)
	if mcpServer != nil {
		mcp.NewTools(serviceManager.GetServices(), mcpServer).Register()
	}

	if cfg.Web.Enabled {
		inMemoryTransport := web.NewInMemoryTransport()
		gateway.RegisterTransport(inMemoryTransport)

		webClient := web.NewWebClient(serviceManager.GetServices(), inMemoryTransport)
		if err := inMemoryTransport.RegisterClient(webClient); err != nil {
			return fmt.Errorf("register web client: %w", err)
		}
		go func() {
			if err := webClient.Start(cfg.Web.Addr); err != nil {
				slog.Error("Web server stopped", "error", err.Error())
			}
		}()
		defer webClient.Shutdown()
	}

	slog.Info("Starting athub gateway", "version", version, "transports", len(gateway.GetTransports()))
	return gateway.Start(context.Background())
}

func registerTransports(gateway *server.Gateway, cfg *config.Config) error {
	if cfg.TCP.Enabled {
		tcp := server.NewTCPTransport(cfg.TCP.Addr)
		tcp.SetName(cfg.TCP.Name)
		tcp.SetDescription("Nodes on the local network over raw TCP")
		if cfg.TCP.MaxClients > 0 {
			tcp.SetMaxClients(cfg.TCP.MaxClients)
		}
		gateway.RegisterTransport(tcp)
	}

	if cfg.WebSocket.Enabled {
		ws := server.NewWSTransport(cfg.WebSocket.Addr)
		ws.SetName(cfg.WebSocket.Name)
		ws.SetDescription("Nodes and browsers over WebSocket binary frames")
		if cfg.WebSocket.MaxClients > 0 {
			ws.SetMaxClients(cfg.WebSocket.MaxClients)
		}
		gateway.RegisterTransport(ws)
	}

	if cfg.Serial.Enabled {
		serial := server.NewSerialTransport(cfg.Serial.Port())
		serial.SetName("Serial " + cfg.Serial.Device)
		serial.SetDescription("A single node wired to a serial port")
		gateway.RegisterTransport(serial)
	}

	if cfg.LoRa.Enabled {
		port, err := server.OpenSerialPort(cfg.LoRa.Port())
		if err != nil {
			return fmt.Errorf("open LoRa modem: %w", err)
		}
		radioCfg := cfg.LoRa.Radio()
		radio, err := server.NewSX1276Radio(radioCfg, server.NewSerialModem(port))
		if err != nil {
			port.Close()
			return fmt.Errorf("configure LoRa radio: %w", err)
		}
		lora := server.NewLoRaTransport(radioCfg.LoRaConfig(), radio)
		lora.SetName("LoRa " + cfg.LoRa.Modem)
		lora.SetDescription("Battery nodes over an SX1276 radio")
		gateway.RegisterTransport(lora)
	}

	if len(gateway.GetTransports()) == 0 {
		return fmt.Errorf("no transports enabled")
	}
	return nil
}
