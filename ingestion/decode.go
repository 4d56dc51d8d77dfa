package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// DecodeExport streams the records of an export document to fn one at a time.
// The document is a JSON array of conversations or an object with the array
// under "conversations". A record that is not an object reaches fn as nil so
// the caller can report it; decoding then continues. Errors returned by fn
// stop decoding and are returned as is.
func DecodeExport(r io.Reader, fn func(index int, raw RawConversation) error) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupportedExport, err)
	}
	switch tok {
	case json.Delim('['):
	case json.Delim('{'):
		if err := seekConversations(dec); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: starts with %v", ErrUnsupportedExport, tok)
	}

	for index := 0; dec.More(); index++ {
		var element json.RawMessage
		if err := dec.Decode(&element); err != nil {
			return fmt.Errorf("decoding record %d: %w", index, err)
		}
		if err := fn(index, decodeRecord(element)); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("reading end of export: %w", err)
	}
	return nil
}

// seekConversations advances dec past the opening bracket of the
// "conversations" member, skipping the members before it.
func seekConversations(dec *json.Decoder) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		if key != "conversations" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return err
			}
			continue
		}
		tok, err = dec.Token()
		if err != nil {
			return err
		}
		if tok != json.Delim('[') {
			return fmt.Errorf("%w: conversations is not an array", ErrUnsupportedExport)
		}
		return nil
	}
	return fmt.Errorf("%w: no conversations member", ErrUnsupportedExport)
}

func decodeRecord(element json.RawMessage) RawConversation {
	trimmed := bytes.TrimSpace(element)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var raw RawConversation
	if err := dec.Decode(&raw); err != nil {
		return nil
	}
	return raw
}
