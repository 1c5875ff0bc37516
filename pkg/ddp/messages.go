package ddp

import (
	"encoding/json"
	"fmt"
)

// Protocol version negotiated on connect
const protocolVersion = "1"

// message is the union of every DDP message this client sends or handles.
type message struct {
	Msg     string   `json:"msg,omitempty"`
	ID      string   `json:"id,omitempty"`
	Session string   `json:"session,omitempty"`
	Version string   `json:"version,omitempty"`
	Support []string `json:"support,omitempty"`

	// sub / method
	Name   string `json:"name,omitempty"`
	Method string `json:"method,omitempty"`
	Params []any  `json:"params,omitempty"`

	// added / changed / removed
	Collection string         `json:"collection,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
	Cleared    []string       `json:"cleared,omitempty"`

	// ready / updated
	Subs    []string `json:"subs,omitempty"`
	Methods []string `json:"methods,omitempty"`

	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

// Error is an error reported by the server for a subscription or method
type Error struct {
	Code      any    `json:"error"`
	Reason    string `json:"reason,omitempty"`
	Message   string `json:"message,omitempty"`
	ErrorType string `json:"errorType,omitempty"`
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Reason != "":
		return fmt.Sprintf("%v: %s", e.Code, e.Reason)
	default:
		return fmt.Sprintf("ddp error %v", e.Code)
	}
}
