package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// canonicalBytes renders the fields that feed the ledger's hash in the
// fixed order timestamp, action, details, previous_hash — the canonical
// serialization decided for this ledger (see DESIGN.md, Open Question 2).
// UTF-8, no HTML-escaping, no trailing newline (the newline is added once
// by the caller when the line is written to disk).
func canonicalBytes(timestamp, action string, details map[string]any, previousHash string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"timestamp":`)
	if err := encodeJSONValue(&buf, timestamp); err != nil {
		return nil, err
	}
	buf.WriteString(`,"action":`)
	if err := encodeJSONValue(&buf, action); err != nil {
		return nil, err
	}
	buf.WriteString(`,"details":`)
	if details == nil {
		details = map[string]any{}
	}
	if err := encodeJSONValue(&buf, details); err != nil {
		return nil, err
	}
	buf.WriteString(`,"previous_hash":`)
	if err := encodeJSONValue(&buf, previousHash); err != nil {
		return nil, err
	}
	buf.WriteString(`}`)
	return buf.Bytes(), nil
}

// fullLineBytes appends the hash field to the canonical bytes, producing
// the exact line written to the ledger file (without the trailing \n).
func fullLineBytes(canon []byte, hash string) ([]byte, error) {
	if len(canon) < 1 || canon[len(canon)-1] != '}' {
		return nil, fmt.Errorf("audit.fullLineBytes: malformed canonical bytes")
	}
	var buf bytes.Buffer
	buf.Write(canon[:len(canon)-1])
	buf.WriteString(`,"hash":`)
	if err := encodeJSONValue(&buf, hash); err != nil {
		return nil, err
	}
	buf.WriteString(`}`)
	return buf.Bytes(), nil
}

// encodeJSONValue writes v's JSON encoding to buf without HTML-escaping and
// without the trailing newline json.Encoder normally appends.
func encodeJSONValue(buf *bytes.Buffer, v any) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("audit.encodeJSONValue: %w", err)
	}
	b := tmp.Bytes()
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	buf.Write(b)
	return nil
}
