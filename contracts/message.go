package contracts

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies the kind of an outbound envelope
type MessageType string

const (
	// MessageTypeCommand carries control messages such as {"command": "done"}
	MessageTypeCommand MessageType = "cmd"
	// MessageTypeRequest carries a ProxiedRequest
	MessageTypeRequest MessageType = "req"
	// MessageTypeResult carries test results
	MessageTypeResult MessageType = "result"
	// MessageTypeOutput carries runner output
	MessageTypeOutput MessageType = "output"
)

// MessageTypes lists the fixed message kinds
var MessageTypes = []MessageType{
	MessageTypeCommand,
	MessageTypeRequest,
	MessageTypeResult,
	MessageTypeOutput,
}

// IsKnown reports whether t is one of the fixed message kinds
func (t MessageType) IsKnown() bool {
	for _, known := range MessageTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ProxiedRequest is the "req" payload describing an intercepted HTTP request
type ProxiedRequest struct {
	ReqID       uint64  `json:"reqId"`
	Method      string  `json:"method"`
	ContentType *string `json:"contentType"`
	URL         string  `json:"url"`
	Body        *string `json:"body"`
	QueryString *string `json:"qs"`
}

// Reply is published by the peer to complete a proxied request
type Reply struct {
	ReqID       uint64 `json:"reqId"`
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Content     string `json:"content"`
}

// DecodeReply parses a peer reply frame
func DecodeReply(payload []byte) (*Reply, error) {
	var raw struct {
		ReqID       *uint64 `json:"reqId"`
		StatusCode  int     `json:"status_code"`
		ContentType string  `json:"content_type"`
		Content     *string `json:"content"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, &DecodeError{Field: "payload", Err: err}
	}
	if raw.ReqID == nil {
		return nil, &DecodeError{Field: "reqId", Err: ErrMissingField}
	}

	reply := &Reply{
		ReqID:       *raw.ReqID,
		StatusCode:  raw.StatusCode,
		ContentType: raw.ContentType,
	}
	if raw.Content != nil {
		reply.Content = *raw.Content
	}
	return reply, nil
}

// String implements fmt.Stringer for logging
func (r *Reply) String() string {
	return fmt.Sprintf("reply(reqId=%d, status=%d, contentType=%q, %d bytes)",
		r.ReqID, r.StatusCode, r.ContentType, len(r.Content))
}
