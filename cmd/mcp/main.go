// Package mcp implements the `tuitcptester mcp` subcommand — an MCP (Model
// Context Protocol) server over stdio transport. Agents can spawn this
// process and run the stateless probes as tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/cmbsolver/tuitcptester/internal/probe"
	"github.com/cmbsolver/tuitcptester/internal/wire"
	"github.com/cmbsolver/tuitcptester/pkg/types"
)

// Run starts the MCP stdio server. Blocks until stdin closes.
func Run(version string) int {
	s := server.NewMCPServer(
		"tuitcptester",
		version,
		server.WithToolCapabilities(true),
	)

	scanTool := mcp.NewTool("scan_ports",
		mcp.WithDescription("TCP connect sweep over a port range. Returns every open port with its well-known service name. Use modest ranges (a few thousand ports at most); each closed port costs up to timeout_ms."),
		mcp.WithString("host",
			mcp.Description("Target host (default: 127.0.0.1)"),
		),
		mcp.WithNumber("start_port",
			mcp.Description("First port of the range, 1-65535 (default: 1)"),
		),
		mcp.WithNumber("end_port",
			mcp.Description("Last port of the range, 1-65535 (default: 1024)"),
		),
		mcp.WithNumber("timeout_ms",
			mcp.Description("Per-port connect timeout in milliseconds (default: 500)"),
		),
	)
	s.AddTool(scanTool, handleScanPorts)

	serviceTool := mcp.NewTool("port_service",
		mcp.WithDescription("Name the conventional service behind a TCP port number (ssh, http, postgresql, ...). Local lookup, no network traffic."),
		mcp.WithNumber("port",
			mcp.Description("Port number, 1-65535"),
		),
	)
	s.AddTool(serviceTool, handlePortService)

	throughputTool := mcp.NewTool("throughput_test",
		mcp.WithDescription("Raw TCP throughput test: connects to host:port and writes random 64 KB chunks for the given duration. The target must drain the socket. Returns bytes sent and the sustained rate."),
		mcp.WithString("host",
			mcp.Description("Target host (default: 127.0.0.1)"),
		),
		mcp.WithNumber("port",
			mcp.Description("Target port, 1-65535"),
		),
		mcp.WithNumber("seconds",
			mcp.Description("Test duration in seconds, 1-30 (default: 5)"),
		),
	)
	s.AddTool(throughputTool, handleThroughputTest)

	replayTool := mcp.NewTool("replay_packets",
		mcp.WithDescription("Send a hex-encoded payload to host:port a number of times over one TCP connection. Returns the send log. Spaces, dashes and newlines in the hex are ignored."),
		mcp.WithString("host",
			mcp.Description("Target host (default: 127.0.0.1)"),
		),
		mcp.WithNumber("port",
			mcp.Description("Target port, 1-65535"),
		),
		mcp.WithString("hex_payload",
			mcp.Description("Payload as hex digits, e.g. 'de ad be ef'"),
		),
		mcp.WithNumber("count",
			mcp.Description("Number of sends, 1-1000 (default: 1)"),
		),
		mcp.WithNumber("delay_ms",
			mcp.Description("Delay between sends in milliseconds (default: 100)"),
		),
	)
	s.AddTool(replayTool, handleReplayPackets)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "tuitcptester mcp: error: %v\n", err)
		return 1
	}
	return 0
}

// --- Tool Handlers ---

func handleScanPorts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	host := req.GetString("host", "127.0.0.1")
	startPort := req.GetInt("start_port", 1)
	endPort := req.GetInt("end_port", 1024)
	timeoutMs := req.GetInt("timeout_ms", 500)

	if startPort < 1 || startPort > 65535 || endPort < 1 || endPort > 65535 {
		return mcp.NewToolResultError("ports must be between 1 and 65535"), nil
	}
	if startPort > endPort {
		return mcp.NewToolResultError(fmt.Sprintf("start_port %d exceeds end_port %d", startPort, endPort)), nil
	}
	if timeoutMs < 1 {
		timeoutMs = 500
	}
	if timeoutMs > 10000 {
		timeoutMs = 10000
	}

	scanCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	results, err := probe.ScanRange(scanCtx, host, uint16(startPort), uint16(endPort),
		time.Duration(timeoutMs)*time.Millisecond, nil)

	open := make([]types.ScanResult, 0)
	for _, r := range results {
		if r.Open {
			open = append(open, r)
		}
	}

	out := map[string]interface{}{
		"host":          host,
		"start_port":    startPort,
		"end_port":      endPort,
		"scanned_ports": len(results),
		"open_count":    len(open),
		"open":          open,
	}
	if err != nil {
		out["partial"] = true
	}

	data, encErr := json.MarshalIndent(out, "", "  ")
	if encErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("JSON encoding failed: %v", encErr)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func handlePortService(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	port := req.GetInt("port", 0)
	if port < 1 || port > 65535 {
		return mcp.NewToolResultError("port must be between 1 and 65535"), nil
	}

	service := probe.PortDescription(uint16(port))
	if service == "" {
		return mcp.NewToolResultText(fmt.Sprintf("port %d: no well-known service", port)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("port %d: %s", port, service)), nil
}

func handleThroughputTest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	host := req.GetString("host", "127.0.0.1")
	port := req.GetInt("port", 0)
	seconds := req.GetInt("seconds", 5)

	if port < 1 || port > 65535 {
		return mcp.NewToolResultError("port must be between 1 and 65535"), nil
	}
	if seconds < 1 {
		seconds = 1
	}
	if seconds > 30 {
		seconds = 30
	}

	testCtx, cancel := context.WithTimeout(ctx, time.Duration(seconds+15)*time.Second)
	defer cancel()

	result := probe.RunThroughputTest(testCtx, host, uint16(port),
		time.Duration(seconds)*time.Second, nil)

	out := map[string]interface{}{
		"host":                host,
		"port":                port,
		"seconds":             seconds,
		"total_bytes":         result.TotalBytes,
		"bytes_per_second":    result.BytesPerSecond,
		"megabits_per_second": result.BytesPerSecond * 8 / 1e6,
		"success":             result.Success,
	}

	data, encErr := json.MarshalIndent(out, "", "  ")
	if encErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("JSON encoding failed: %v", encErr)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func handleReplayPackets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	host := req.GetString("host", "127.0.0.1")
	port := req.GetInt("port", 0)
	hexPayload := req.GetString("hex_payload", "")
	count := req.GetInt("count", 1)
	delayMs := req.GetInt("delay_ms", 100)

	if port < 1 || port > 65535 {
		return mcp.NewToolResultError("port must be between 1 and 65535"), nil
	}
	if hexPayload == "" {
		return mcp.NewToolResultError("hex_payload is required"), nil
	}
	if _, err := wire.Encode(hexPayload, types.EncodingHex); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid hex_payload: %v", err)), nil
	}
	if count < 1 {
		count = 1
	}
	if count > 1000 {
		count = 1000
	}
	if delayMs < 0 {
		delayMs = 0
	}

	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	var lines []string
	probe.RunPacketGenerator(runCtx, host, uint16(port), hexPayload, count,
		time.Duration(delayMs)*time.Millisecond, func(msg string) {
			lines = append(lines, msg)
		})

	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}
