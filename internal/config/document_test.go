package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cmbsolver/tuitcptester/internal/config"
	errs "github.com/cmbsolver/tuitcptester/pkg/errors"
	"github.com/cmbsolver/tuitcptester/pkg/types"
)

func u32(v uint32) *uint32 { return &v }

func TestLoadDocumentMissingFile(t *testing.T) {
	doc, err := config.LoadDocument(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("missing document should not error: %v", err)
	}
	if len(doc.Connections) != 0 {
		t.Fatalf("expected empty document, got %d connections", len(doc.Connections))
	}
}

func TestSaveAndLoadDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.json")

	doc := &config.Document{
		Connections: []types.ConnectionConfig{
			{
				Name: "echo-server",
				Role: types.RoleServer,
				Host: "0.0.0.0",
				Port: 7100,
			},
			{
				Name: "heartbeat",
				Role: types.RoleClient,
				Host: "192.168.1.20",
				Port: 7100,
				AutoTransactions: []types.Transaction{
					{Data: "PING", Encoding: types.EncodingAscii, AppendNewline: true},
					{Data: "deadbeef", Encoding: types.EncodingHex},
				},
				IntervalMs:  u32(1000),
				JitterMinMs: u32(50),
				JitterMaxMs: u32(150),
			},
		},
	}

	if err := config.SaveDocument(path, doc); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := config.LoadDocument(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Connections) != 2 {
		t.Fatalf("expected 2 connections, got %d", len(loaded.Connections))
	}

	hb := loaded.Connections[1]
	if hb.Name != "heartbeat" || hb.Role != types.RoleClient {
		t.Fatalf("unexpected connection: %+v", hb)
	}
	if len(hb.AutoTransactions) != 2 || hb.AutoTransactions[0].Data != "PING" {
		t.Fatalf("transactions did not survive the round trip: %+v", hb.AutoTransactions)
	}
	if hb.IntervalMs == nil || *hb.IntervalMs != 1000 {
		t.Fatalf("interval did not survive the round trip: %v", hb.IntervalMs)
	}
	if hb.JitterMinMs == nil || *hb.JitterMinMs != 50 || hb.JitterMaxMs == nil || *hb.JitterMaxMs != 150 {
		t.Fatal("jitter bounds did not survive the round trip")
	}
}

func TestLoadDocumentBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := config.LoadDocument(path)
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if errs.CodeOf(err) != errs.ErrCodeInvalidConfig {
		t.Fatalf("expected INVALID_CONFIG, got %v", err)
	}
}

func TestLoadDocumentUnknownRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.json")
	body := `{"connections":[{"name":"x","role":"repeater","host":"h","port":1}]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := config.LoadDocument(path); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestLoadDocumentRejectsInvalidConnection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "connections.json")
	body := `{"connections":[{"name":"broken","role":"client","port":7000}]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, err := config.LoadDocument(path)
	if err == nil {
		t.Fatal("expected error for client without a host")
	}
	if errs.CodeOf(err) != errs.ErrCodeInvalidConfig {
		t.Fatalf("expected INVALID_CONFIG, got %v", err)
	}
}

func TestDocumentValidateDuplicateNames(t *testing.T) {
	doc := &config.Document{
		Connections: []types.ConnectionConfig{
			{Name: "dup", Role: types.RoleServer, Port: 7000},
			{Name: "dup", Role: types.RoleServer, Port: 7001},
		},
	}
	if err := doc.Validate(); err == nil {
		t.Fatal("expected error for duplicate connection names")
	}
}

func TestSaveDocumentCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "connections.json")

	doc := &config.Document{
		Connections: []types.ConnectionConfig{
			{Name: "s", Role: types.RoleServer, Port: 7000},
		},
	}
	if err := config.SaveDocument(path, doc); err != nil {
		t.Fatalf("save with missing parents: %v", err)
	}

	loaded, err := config.LoadDocument(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Connections) != 1 {
		t.Fatalf("expected 1 connection, got %d", len(loaded.Connections))
	}
}
