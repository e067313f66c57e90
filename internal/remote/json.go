package remote

import (
	"bytes"
	"encoding/json"
	"strings"
)

// looseString accepts a JSON string, number or reference object ({name}, {refName}, {id}).
// ERP payloads are inconsistent about which of these they use for ids and names.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*s = ""
	case b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
	case b[0] == '{':
		var ref struct {
			Name    looseString `json:"name"`
			RefName looseString `json:"refName"`
			Message looseString `json:"message"`
			ID      looseString `json:"id"`
		}
		if err := json.Unmarshal(b, &ref); err != nil {
			return err
		}
		*s = firstNonEmpty(ref.Name, ref.RefName, ref.Message, ref.ID)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
		*s = looseString(n.String())
	}
	return nil
}

func firstNonEmpty(values ...looseString) looseString {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// errorMessage extracts a human readable message from an error response body.
func errorMessage(body []byte, fallback string) string {
	var payload struct {
		Title   looseString `json:"title"`
		Detail  looseString `json:"detail"`
		Error   looseString `json:"error"`
		Message looseString `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		if msg := firstNonEmpty(payload.Detail, payload.Title, payload.Error, payload.Message); msg != "" {
			return string(msg)
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		return fallback
	}
	return msg
}
