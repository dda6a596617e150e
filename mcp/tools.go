package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mbocsi/athub/services"
)

// Tools exposes the gateway services to MCP clients
type Tools struct {
	mcpServer *MCPServer
	services  *services.ServiceContainer
}

func NewTools(serviceContainer *services.ServiceContainer, mcpServer *MCPServer) *Tools {
	return &Tools{services: serviceContainer, mcpServer: mcpServer}
}

// Register adds every tool to the MCP server
func (m *Tools) Register() {
	m.registerDeviceTools()
	m.registerOutputTools()
	m.registerSystemTools()
}

func (m *Tools) registerDeviceTools() {
	listDevicesTool := mcp.NewTool("list_devices",
		mcp.WithDescription("List every sensor and actuator node the gateway has heard from"),
		mcp.WithBoolean("include_readings",
			mcp.Description("Include the latest reading of each channel"),
		),
	)
	m.mcpServer.AddTool(listDevicesTool, m.handleListDevices)

	getReadingsTool := mcp.NewTool("get_readings",
		mcp.WithDescription("Get the latest value of every channel a device has reported"),
		mcp.WithString("device",
			mcp.Required(),
			mcp.Description("Device id, six hex bytes separated by colons"),
		),
	)
	m.mcpServer.AddTool(getReadingsTool, m.handleGetReadings)

	renameTool := mcp.NewTool("rename_device",
		mcp.WithDescription("Give a device a human readable name"),
		mcp.WithString("device", mcp.Required(), mcp.Description("Device id")),
		mcp.WithString("name", mcp.Required(), mcp.Description("New name")),
	)
	m.mcpServer.AddTool(renameTool, m.handleRenameDevice)

	pollTool := mcp.NewTool("poll_device",
		mcp.WithDescription("Ask a passive device for a fresh report and wait for it"),
		mcp.WithString("device", mcp.Required(), mcp.Description("Device id")),
		mcp.WithNumber("timeout",
			mcp.Description("Timeout in seconds"),
		),
	)
	m.mcpServer.AddTool(pollTool, m.handlePollDevice)
}

func (m *Tools) registerOutputTools() {
	setOutputTool := mcp.NewTool("set_output",
		mcp.WithDescription("Drive one actuator channel of a device"),
		mcp.WithString("device", mcp.Required(), mcp.Description("Device id")),
		mcp.WithNumber("channel",
			mcp.Required(),
			mcp.Description("Channel number, 0 to 255"),
		),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description("Value kind"),
			mcp.Enum("switch", "long", "float"),
		),
		mcp.WithString("unit",
			mcp.Description("Unit name such as celsius or percent, or a symbol such as °C"),
		),
		mcp.WithString("value",
			mcp.Required(),
			mcp.Description("Value to set: true/false for switch, a number otherwise"),
		),
	)
	m.mcpServer.AddTool(setOutputTool, m.handleSetOutput)

	applyTool := mcp.NewTool("apply_outputs",
		mcp.WithDescription("Drive several actuator channels of a device in one message"),
		mcp.WithString("device", mcp.Required(), mcp.Description("Device id")),
		mcp.WithArray("outputs",
			mcp.Required(),
			mcp.Description(`Outputs as objects {"channel":1,"kind":"switch|long|float","unit":"percent","value":...}`),
		),
	)
	m.mcpServer.AddTool(applyTool, m.handleApplyOutputs)
}

func (m *Tools) registerSystemTools() {
	statusTool := mcp.NewTool("get_system_status",
		mcp.WithDescription("Get gateway health: devices, transports and connection counts"),
		mcp.WithBoolean("include_transports",
			mcp.Description("Include transport information"),
		),
	)
	m.mcpServer.AddTool(statusTool, m.handleGetSystemStatus)
}

func (m *Tools) handleListDevices(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	includeReadings := request.GetBool("include_readings", false)

	devices, err := m.services.Device.ListDevices()
	if err != nil {
		return toolError("Error listing devices", err), nil
	}
	if !includeReadings {
		for i := range devices {
			devices[i].Readings = nil
		}
	}

	return jsonResult(map[string]interface{}{
		"devices": devices,
		"count":   len(devices),
	})
}

func (m *Tools) handleGetReadings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("device")
	if err != nil {
		return mcp.NewToolResultError("device is required and must be a string"), nil
	}

	readings, err := m.services.Device.GetReadings(id)
	if err != nil {
		return toolError("Error reading device", err), nil
	}
	return jsonResult(readings)
}

func (m *Tools) handleRenameDevice(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("device")
	if err != nil {
		return mcp.NewToolResultError("device is required and must be a string"), nil
	}
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required and must be a string"), nil
	}

	if err := m.services.Device.RenameDevice(id, name); err != nil {
		return toolError("Error renaming device", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Renamed %s", id)), nil
}

func (m *Tools) handlePollDevice(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("device")
	if err != nil {
		return mcp.NewToolResultError("device is required and must be a string"), nil
	}

	var timeout time.Duration
	if seconds := request.GetFloat("timeout", 0); seconds > 0 {
		timeout = time.Duration(seconds * float64(time.Second))
	}

	result, err := m.services.Poll.Poll(ctx, id, timeout)
	if err != nil {
		return toolError("Poll failed", err), nil
	}
	return jsonResult(result)
}

func (m *Tools) handleSetOutput(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("device")
	if err != nil {
		return mcp.NewToolResultError("device is required and must be a string"), nil
	}
	kind, err := request.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError("kind is required and must be a string"), nil
	}
	channel := request.GetFloat("channel", -1)
	if channel < 0 || channel > 255 || channel != float64(int(channel)) {
		return mcp.NewToolResultError("channel must be an integer from 0 to 255"), nil
	}

	args, _ := request.GetRawArguments().(map[string]interface{})
	value, ok := args["value"]
	if !ok {
		return mcp.NewToolResultError("value is required"), nil
	}

	out := services.Output{
		Channel: uint8(channel),
		Kind:    kind,
		Unit:    request.GetString("unit", ""),
		Value:   value,
	}
	if err := m.services.Output.Apply(id, []services.Output{out}); err != nil {
		return toolError("Failed to set output", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Set %s channel %d on %s", kind, out.Channel, id)), nil
}

func (m *Tools) handleApplyOutputs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("device")
	if err != nil {
		return mcp.NewToolResultError("device is required and must be a string"), nil
	}

	args, _ := request.GetRawArguments().(map[string]interface{})
	raw, ok := args["outputs"]
	if !ok {
		return mcp.NewToolResultError("outputs is required"), nil
	}
	// Round-trip through JSON to reuse the Output field tags.
	data, err := json.Marshal(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read outputs: %v", err)), nil
	}
	var outputs []services.Output
	if err := json.Unmarshal(data, &outputs); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("outputs must be a list of output objects: %v", err)), nil
	}

	if err := m.services.Output.Apply(id, outputs); err != nil {
		return toolError("Failed to apply outputs", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Applied %d outputs on %s", len(outputs), id)), nil
}

func (m *Tools) handleGetSystemStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	includeTransports := request.GetBool("include_transports", true)

	status := map[string]interface{}{
		"timestamp": time.Now().Unix(),
	}

	if stats, err := m.services.Transport.GetTransportStats(); err == nil {
		status["stats"] = stats
	}

	if includeTransports {
		if transports, err := m.services.Transport.ListTransports(); err == nil {
			status["transports"] = map[string]interface{}{
				"count": len(transports),
				"list":  transports,
			}
		}
	}

	return jsonResult(status)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	resultBytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(resultBytes)), nil
}

// toolError reports a failed call to the model. Service error codes are kept
// so the model can tell a missing device from a timeout.
func toolError(prefix string, err error) *mcp.CallToolResult {
	var serviceErr services.ServiceError
	if errors.As(err, &serviceErr) {
		return mcp.NewToolResultError(fmt.Sprintf("%s: [%s] %s", prefix, serviceErr.Code, serviceErr.Message))
	}
	slog.Error("MCP tool failed", "error", err)
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
}
