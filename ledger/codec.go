/*
codec.go - Plain-text transport of snapshots

PURPOSE:
  Some channels (chat paste boxes, notes apps) only carry plain Unicode
  text and mangle anything else. Encode wraps the snapshot JSON in standard
  base64, which survives those channels byte for byte; Decode reverses it.
  The format is base64(UTF-8 JSON), the same bytes legacy clients produce.

DECODE PIPELINE:
  text --trim--> base64 --decode--> bytes --parse--> object --marker--> Sanitize

  Stage failures are structural and return a *DecodeError before
  any state is touched. Text that already starts with '{' is accepted as
  raw JSON, which is what a user pastes when copying the unencoded backup.

ROUND TRIP:
  Decode(Encode(s)) == s for any snapshot already in canonical form
  (see Canonical).
*/
package ledger

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Encode renders a snapshot as base64 text. The type marker is always set.
func Encode(s Snapshot) (string, error) {
	s.Type = SnapshotType
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode parses transport text into a sanitized snapshot.
func Decode(text string) (Snapshot, error) {
	rep, err := DecodeReport(text)
	if err != nil {
		return Snapshot{}, err
	}
	return rep.Snapshot, nil
}

// DecodeReport is Decode that also returns the sanitizer report, including
// the corrupt-backup payload when every order was lost.
func DecodeReport(text string) (Report, error) {
	data, err := decodeText(text)
	if err != nil {
		return Report{}, err
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Report{}, &DecodeError{Stage: "json", Err: fmt.Errorf("%w: %v", ErrNotJSON, err)}
	}
	obj, ok := asObject(raw)
	if !ok {
		return Report{}, &DecodeError{Stage: "json", Err: ErrNotJSON}
	}
	if obj.str("type") != SnapshotType {
		return Report{}, &DecodeError{Stage: "marker", Err: ErrMissingMarker}
	}

	rep := sanitize(raw)
	if rep.CorruptBackup != nil {
		rep.CorruptBackup = data
	}
	return rep, nil
}

func decodeText(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &DecodeError{Stage: "base64", Err: ErrNotDecodable}
	}
	if strings.HasPrefix(text, "{") {
		return []byte(text), nil
	}

	// Chat clients wrap long lines; base64 never contains whitespace.
	compact := strings.Join(strings.Fields(text), "")
	data, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(compact, "="))
	}
	if err != nil {
		return nil, &DecodeError{Stage: "base64", Err: fmt.Errorf("%w: %v", ErrNotDecodable, err)}
	}
	return data, nil
}
