package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
)

const (
	TypeJoin  = "join"
	TypeError = "error"
)

// Error codes sent in-band on the offending connection.
const (
	CodeSessionEnded   = "session_ended"
	CodeForbidden      = "forbidden"
	CodeInvalidMessage = "invalid_message"
	CodeInternal       = "internal"
)

// flexID accepts a JSON number or string.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("id must be a string or number")
	}
	*f = flexID(n.String())
	return nil
}

func (f flexID) int64() (int64, bool) {
	id, err := strconv.ParseInt(string(f), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// envelope is the routing part of every inbound message. The rest of the
// payload is opaque and relayed as received.
type envelope struct {
	Type   string `json:"type"`
	Room   flexID `json:"room"`
	UserID flexID `json:"userId"`
}

type joinMessage struct {
	Type   string `json:"type"`
	UserID int64  `json:"userId"`
	Room   string `json:"room"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Room    string `json:"room,omitempty"`
}

func parseEnvelope(raw []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, err
	}
	if env.Type == "" {
		return envelope{}, errors.New("missing type")
	}
	if env.Room == "" {
		return envelope{}, errors.New("missing room")
	}
	return env, nil
}
