// Package wire converts between textual transaction payloads and raw bytes
// and renders byte buffers for logging.
package wire

import (
	"encoding/base64"
	"encoding/hex"
	"strings"

	errs "github.com/cmbsolver/tuitcptester/pkg/errors"
	"github.com/cmbsolver/tuitcptester/pkg/types"
)

// hexCleaner drops the separators people paste into hex payloads.
var hexCleaner = strings.NewReplacer(" ", "", "\t", "", "\r", "", "\n", "", "-", "")

// Encode turns payload text into wire bytes per the encoding. Ascii passes
// the text through unvalidated. Hex ignores spaces, tabs, newlines and
// dashes, then requires an even number of hex digits. Binary is base64.
func Encode(text string, enc types.Encoding) ([]byte, error) {
	switch enc {
	case types.EncodingAscii:
		return []byte(text), nil
	case types.EncodingHex:
		clean := hexCleaner.Replace(text)
		if len(clean)%2 != 0 {
			return nil, errs.ErrFormat("hex payload has odd length", nil)
		}
		data, err := hex.DecodeString(clean)
		if err != nil {
			return nil, errs.ErrFormat("hex payload contains non-hex characters", err)
		}
		return data, nil
	case types.EncodingBinary:
		data, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return nil, errs.ErrFormat("invalid base64 payload", err)
		}
		return data, nil
	}
	return nil, errs.ErrInvalidConfig("unsupported encoding "+string(enc), nil)
}

// EncodeTransaction applies the append flags to the payload text and encodes
// it. The flags touch the text before the encoding switch, so for binary
// payloads they alter the base64 text itself. See types.Transaction.
func EncodeTransaction(tx types.Transaction) ([]byte, error) {
	text := tx.Data
	if tx.AppendReturn {
		text += "\r"
	}
	if tx.AppendNewline {
		text += "\n"
	}
	return Encode(text, tx.Encoding)
}
