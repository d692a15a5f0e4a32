package wire

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HexDump renders p[off:off+n] in the classic 16-bytes-per-line layout:
// 8-digit hex offset, byte pairs with an extra space after the eighth, and a
// |ascii| trailer where bytes below 0x20, 0x7f, and anything above render as
// '.'. Offsets count from the start of the window. Out-of-range off and n
// clamp to the buffer.
func HexDump(p []byte, off, n int) string {
	if off < 0 {
		off = 0
	}
	if off > len(p) {
		off = len(p)
	}
	if n < 0 {
		n = 0
	}
	end := off + n
	if end > len(p) || end < off {
		end = len(p)
	}
	return hex.Dump(p[off:end])
}

// DumpAll is HexDump over the whole buffer.
func DumpAll(p []byte) string {
	return hex.Dump(p)
}

// HexString renders p as space-joined two-digit lowercase hex, the compact
// single-line form used for forwarded-chunk logs.
func HexString(p []byte) string {
	if len(p) == 0 {
		return ""
	}
	return fmt.Sprintf("% x", p)
}

var controlEscaper = strings.NewReplacer("\r", `\r`, "\n", `\n`)

// EscapeControl renders carriage returns and newlines as literal \r and \n
// so a forwarded chunk stays on one log line.
func EscapeControl(s string) string {
	return controlEscaper.Replace(s)
}
