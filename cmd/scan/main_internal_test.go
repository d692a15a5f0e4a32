package scan

import (
	"encoding/json"
	"io"
	"net"
	"os"
	"strconv"
	"testing"
)

func TestScanRejectsInvalidRanges(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{name: "start zero", args: []string{"--start", "0", "--end", "10"}},
		{name: "end too high", args: []string{"--start", "1", "--end", "70000"}},
		{name: "start after end", args: []string{"--start", "100", "--end", "10"}},
		{name: "timeout zero", args: []string{"--start", "1", "--end", "1", "--timeout", "0"}},
		{name: "timeout too high", args: []string{"--start", "1", "--end", "1", "--timeout", "60001"}},
		{name: "empty host", args: []string{"-host", "", "--start", "1", "--end", "1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if code := Run(tc.args, "test"); code != exitUsage {
				t.Fatalf("exit code = %d, want %d", code, exitUsage)
			}
		})
	}
}

// captureStdout runs fn with stdout redirected and returns what it wrote.
func captureStdout(t *testing.T, fn func()) []byte {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	fn()
	_ = w.Close()
	os.Stdout = old

	raw, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read captured stdout: %v", err)
	}
	return raw
}

func TestScanJSONFindsOpenPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)

	var code int
	raw := captureStdout(t, func() {
		code = Run([]string{"--json", "-host", "127.0.0.1",
			"--start", port, "--end", port, "--timeout", "2000"}, "test")
	})
	if code != exitSuccess {
		t.Fatalf("exit code = %d, want %d", code, exitSuccess)
	}

	var out ScanOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if out.SchemaVersion != "1.0" {
		t.Fatalf("schema_version = %q", out.SchemaVersion)
	}
	if out.ScannedPorts != 1 || out.OpenCount != 1 {
		t.Fatalf("scanned = %d open = %d, want 1/1", out.ScannedPorts, out.OpenCount)
	}
	if len(out.Results) != 1 || !out.Results[0].Open {
		t.Fatalf("results = %+v, want one open port", out.Results)
	}
	if out.Interrupted {
		t.Fatal("uninterrupted sweep reported interrupted")
	}
}

func TestScanOpenOnlyOmitsClosedPorts(t *testing.T) {
	// Grab a free port and release it so the probe finds it closed.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)
	_ = ln.Close()

	var code int
	raw := captureStdout(t, func() {
		code = Run([]string{"--json", "--open-only", "-host", "127.0.0.1",
			"--start", port, "--end", port, "--timeout", "2000"}, "test")
	})
	if code != exitSuccess {
		t.Fatalf("exit code = %d, want %d", code, exitSuccess)
	}

	var out ScanOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if out.ScannedPorts != 1 || out.OpenCount != 0 {
		t.Fatalf("scanned = %d open = %d, want 1/0", out.ScannedPorts, out.OpenCount)
	}
	if len(out.Results) != 0 {
		t.Fatalf("open-only results = %+v, want none", out.Results)
	}
}
