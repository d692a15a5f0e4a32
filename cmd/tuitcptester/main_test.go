package main

import "testing"

func TestRunDispatch(t *testing.T) {
	oldTui, oldRunner, oldScan := runTui, runRunner, runScan
	oldBench, oldReplay, oldMCP := runBench, runReplay, runMCP
	t.Cleanup(func() {
		runTui, runRunner, runScan = oldTui, oldRunner, oldScan
		runBench, runReplay, runMCP = oldBench, oldReplay, oldMCP
	})

	var got struct {
		target string
		args   []string
	}
	record := func(target string, code int) func([]string, string) int {
		return func(args []string, _ string) int {
			got.target = target
			got.args = append([]string(nil), args...)
			return code
		}
	}

	runTui = record("tui", 11)
	runRunner = record("run", 12)
	runScan = record("scan", 13)
	runBench = record("bench", 14)
	runReplay = record("replay", 15)
	runMCP = func(_ string) int {
		got.target = "mcp"
		got.args = nil
		return 16
	}

	tests := []struct {
		name       string
		args       []string
		wantTarget string
		wantArgs   []string
		wantExit   int
	}{
		{name: "default tui", args: nil, wantTarget: "tui", wantExit: 11},
		{name: "tui subcommand", args: []string{"tui", "-c", "x.json"}, wantTarget: "tui", wantArgs: []string{"-c", "x.json"}, wantExit: 11},
		{name: "run subcommand", args: []string{"run", "-monitor", ":0"}, wantTarget: "run", wantArgs: []string{"-monitor", ":0"}, wantExit: 12},
		{name: "scan subcommand", args: []string{"scan", "-host", "h"}, wantTarget: "scan", wantArgs: []string{"-host", "h"}, wantExit: 13},
		{name: "bench subcommand", args: []string{"bench"}, wantTarget: "bench", wantExit: 14},
		{name: "replay subcommand", args: []string{"replay"}, wantTarget: "replay", wantExit: 15},
		{name: "mcp subcommand", args: []string{"mcp"}, wantTarget: "mcp", wantExit: 16},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got.target = ""
			got.args = nil
			code := run(tc.args, "test")
			if code != tc.wantExit {
				t.Fatalf("exit code = %d, want %d", code, tc.wantExit)
			}
			if got.target != tc.wantTarget {
				t.Fatalf("target = %q, want %q", got.target, tc.wantTarget)
			}
			if len(tc.wantArgs) > 0 {
				if len(got.args) != len(tc.wantArgs) {
					t.Fatalf("forwarded args = %v, want %v", got.args, tc.wantArgs)
				}
				for i := range tc.wantArgs {
					if got.args[i] != tc.wantArgs[i] {
						t.Fatalf("forwarded args = %v, want %v", got.args, tc.wantArgs)
					}
				}
			}
		})
	}
}

func TestRunHelpVersionAndUnknown(t *testing.T) {
	if code := run([]string{"help"}, "test"); code != 0 {
		t.Fatalf("help exit code = %d, want 0", code)
	}
	if code := run([]string{"--help"}, "test"); code != 0 {
		t.Fatalf("--help exit code = %d, want 0", code)
	}
	if code := run([]string{"version"}, "test"); code != 0 {
		t.Fatalf("version exit code = %d, want 0", code)
	}
	if code := run([]string{"unknown-cmd"}, "test"); code != 2 {
		t.Fatalf("unknown exit code = %d, want 2", code)
	}
	if code := run([]string{"--unknown-flag"}, "test"); code != 2 {
		t.Fatalf("unknown top-level flag exit code = %d, want 2", code)
	}
}
