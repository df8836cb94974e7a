package transport

import (
	"bytes"
	"net/http"

	"github.com/tidwall/gjson"
)

// envelope is the server's response convention: { data, message? }.
type envelope struct {
	Data    []byte // raw JSON of "data"; nil when absent or null
	Message string
}

func unwrap(body []byte) (envelope, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return envelope{}, nil
	}
	if !gjson.ValidBytes(body) {
		return envelope{}, ErrMalformedEnvelope
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return envelope{}, ErrMalformedEnvelope
	}
	var env envelope
	if msg := root.Get("message"); msg.Exists() {
		env.Message = msg.String()
	}
	if data := root.Get("data"); data.Exists() && data.Type != gjson.Null {
		env.Data = []byte(data.Raw)
	}
	return env, nil
}

// failureMessage extracts "message" from an error body, falling back to the status text.
func failureMessage(status int, body []byte) string {
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "message"); msg.Exists() && msg.String() != "" {
			return msg.String()
		}
	}
	if txt := http.StatusText(status); txt != "" {
		return txt
	}
	return "request failed"
}
