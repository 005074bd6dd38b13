// Package protocol describes the chat wire format: one JSON object per line,
// UTF-8, terminated by '\n'.
//
// Before authentication the client sends login, signup or resume requests and
// the server answers each with a Response. Afterwards the client sends
// message requests and receives Events, both chat lines and join/leave
// announcements from the "Server" sender.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/gophchat/internal/common"
)

const (
	CommandLogin   = "login"
	CommandSignup  = "signup"
	CommandResume  = "resume"
	CommandMessage = "message"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusFail    Status = "fail"
	StatusError   Status = "error"
)

// Request is any client-to-server frame. Which fields matter depends on
// Command.
type Request struct {
	Command  string `json:"command"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
	Content  string `json:"content,omitempty"`
}

// Response answers an authentication request. Token is only set on success
// when the server issues session tokens.
type Response struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
}

// Event is a chat line fanned out to every authenticated connection.
type Event struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
}

// Marshal encodes v as a single newline-terminated frame.
func Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return append(b, '\n'), nil
}

// ParseRequest decodes a frame into a Request. Frames that are not a JSON
// object, or whose fields have the wrong types, yield ErrMalformedFrame.
func ParseRequest(frame []byte) (*Request, error) {
	req := &Request{}
	if err := decodeObject(frame, req); err != nil {
		return nil, err
	}
	return req, nil
}

func ParseResponse(frame []byte) (*Response, error) {
	resp := &Response{}
	if err := decodeObject(frame, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func ParseEvent(frame []byte) (*Event, error) {
	ev := &Event{}
	if err := decodeObject(frame, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func decodeObject(frame []byte, v any) error {
	// json.Unmarshal accepts "null" into a struct as a no-op
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(frame, &raw); err != nil || raw == nil {
		return fmt.Errorf("%w: not a json object", common.ErrMalformedFrame)
	}
	if err := json.Unmarshal(frame, v); err != nil {
		return fmt.Errorf("%w: %v", common.ErrMalformedFrame, err)
	}
	return nil
}
