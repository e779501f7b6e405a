package reducer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Marshal encodes a reduced snippet. Variants keep their declared field
// order, embedded ones included, and map keys are sorted, so equal documents
// encode identically.
func Marshal(s Snippet) ([]byte, error) {
	return encode(s)
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Serialize writes the document to a temporary file positioned at its
// start. The caller closes and removes it.
func Serialize(s Snippet) (*os.File, error) {
	data, err := Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode ambrosia: %w", err)
	}
	f, err := os.CreateTemp("", "ambrosia-*.json")
	if err != nil {
		return nil, fmt.Errorf("create temp artifact: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("write temp artifact: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("rewind temp artifact: %w", err)
	}
	return f, nil
}
