package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is an identifier as submitted by a client: either a server identifier
// or a client-local placeholder such as "tmp-3". The empty ID means "none".
type ID string

// NewID wraps a server identifier.
func NewID(n int64) ID {
	return ID(strconv.FormatInt(n, 10))
}

// Int64 returns the identifier as a server id when it looks like one.
func (id ID) Int64() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func (id ID) IsZero() bool {
	return id == ""
}

// MarshalJSON writes server identifiers as numbers and placeholders as
// strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	if n, ok := id.Int64(); ok {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts a string, an integer or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidID, data)
		}
		*id = ID(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidID, data)
		}
		*id = ID(n.String())
		return nil
	}
}
