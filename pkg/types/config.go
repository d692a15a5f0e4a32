package types

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Role selects the socket direction and lifecycle of a connection.
type Role string

const (
	RoleClient Role = "client"
	RoleServer Role = "server"
	RoleProxy  Role = "proxy"
)

// ParseRole accepts any casing ("Client", "CLIENT", "client").
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "client":
		return RoleClient, nil
	case "server":
		return RoleServer, nil
	case "proxy":
		return RoleProxy, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string {
	return string(r)
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Encoding names how a transaction's textual payload becomes wire bytes.
// Binary means the payload text is base64.
type Encoding string

const (
	EncodingAscii  Encoding = "ascii"
	EncodingHex    Encoding = "hex"
	EncodingBinary Encoding = "binary"
)

// ParseEncoding accepts any casing ("Ascii", "HEX", "binary").
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ascii":
		return EncodingAscii, nil
	case "hex":
		return EncodingHex, nil
	case "binary":
		return EncodingBinary, nil
	}
	return "", fmt.Errorf("unknown encoding %q", s)
}

func (e Encoding) String() string {
	return string(e)
}

func (e *Encoding) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseEncoding(s)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// Transaction is one scripted payload. AppendReturn/AppendNewline append "\r"
// and "\n" to the payload TEXT before the encoding step, so for Binary they
// land inside the base64 text and corrupt it rather than appending raw bytes
// to the decoded payload. That is long-standing observed behavior and is kept.
type Transaction struct {
	Data          string   `json:"data"`
	Encoding      Encoding `json:"encoding"`
	AppendReturn  bool     `json:"appendReturn,omitempty"`
	AppendNewline bool     `json:"appendNewline,omitempty"`
}

// ConnectionConfig describes one connection definition. It is immutable once
// an instance has been built from it.
type ConnectionConfig struct {
	Name             string        `json:"name"`
	Role             Role          `json:"role"`
	Host             string        `json:"host"`
	Port             uint16        `json:"port"`
	RemoteHost       string        `json:"remoteHost,omitempty"`
	RemotePort       uint16        `json:"remotePort,omitempty"`
	AutoTransactions []Transaction `json:"autoTransactions,omitempty"`
	IntervalMs       *uint32       `json:"intervalMs,omitempty"`
	JitterMinMs      *uint32       `json:"jitterMinMs,omitempty"`
	JitterMaxMs      *uint32       `json:"jitterMaxMs,omitempty"`
	DumpFilePath     string        `json:"dumpFilePath,omitempty"`
}

// Address is the listen address (server/proxy) or dial target (client).
func (c *ConnectionConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(int(c.Port)))
}

// RemoteAddress is the proxy's upstream target.
func (c *ConnectionConfig) RemoteAddress() string {
	return net.JoinHostPort(c.RemoteHost, strconv.Itoa(int(c.RemotePort)))
}

// Validate checks the structural invariants. Payload well-formedness (hex
// digits, base64) is checked at encode time, not here.
func (c *ConnectionConfig) Validate() error {
	switch c.Role {
	case RoleClient, RoleServer, RoleProxy:
	default:
		return fmt.Errorf("connection %q: invalid role %q", c.Name, c.Role)
	}

	if c.Role == RoleClient {
		if c.Host == "" {
			return fmt.Errorf("connection %q: client requires a host", c.Name)
		}
		if c.Port == 0 {
			return fmt.Errorf("connection %q: client requires a target port", c.Name)
		}
	}

	hasRemoteHost := c.RemoteHost != ""
	hasRemotePort := c.RemotePort != 0
	if hasRemoteHost != hasRemotePort {
		return fmt.Errorf("connection %q: remoteHost and remotePort must be set together", c.Name)
	}
	if c.Role == RoleProxy && !hasRemoteHost {
		return fmt.Errorf("connection %q: proxy requires remoteHost and remotePort", c.Name)
	}

	hasJitterMin := c.JitterMinMs != nil
	hasJitterMax := c.JitterMaxMs != nil
	if hasJitterMin != hasJitterMax {
		return fmt.Errorf("connection %q: jitterMinMs and jitterMaxMs must be set together", c.Name)
	}
	if hasJitterMin && *c.JitterMinMs > *c.JitterMaxMs {
		return fmt.Errorf("connection %q: jitterMinMs %d exceeds jitterMaxMs %d", c.Name, *c.JitterMinMs, *c.JitterMaxMs)
	}

	for i := range c.AutoTransactions {
		switch c.AutoTransactions[i].Encoding {
		case EncodingAscii, EncodingHex, EncodingBinary:
		default:
			return fmt.Errorf("connection %q: transaction %d: invalid encoding %q", c.Name, i, c.AutoTransactions[i].Encoding)
		}
	}
	return nil
}
