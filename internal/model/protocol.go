package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMissingAction = errors.New("request has no action")

type Request struct {
	Action     Action  `json:"action"`
	Code       *string `json:"code,omitempty"`
	Token      *string `json:"token,omitempty"`
	ClientName *string `json:"client_name,omitempty"`
	RepoID     *string `json:"repo_id,omitempty"`
	ModelName  *string `json:"model_name,omitempty"`
}

type Response struct {
	OK          bool   `json:"ok"`
	Message     string `json:"message"`
	Token       string `json:"token,omitempty"`
	RobotName   string `json:"robot_name,omitempty"`
	Nickname    string `json:"nickname,omitempty"`
	RobotType   string `json:"robot_type,omitempty"`
	ServicePort int    `json:"service_port,omitempty"`
}

// WithIdentity copies the identity fields into r.
func (r Response) WithIdentity(id RobotIdentity) Response {
	r.RobotName = id.RobotName
	r.Nickname = id.Nickname
	r.RobotType = id.RobotType
	r.ServicePort = id.ServicePort
	return r
}

// ParseRequest decodes one request line. Any shape mismatch, including a
// missing or non-string action, is an error.
func ParseRequest(line []byte) (Request, error) {
	var raw struct {
		Action     *string `json:"action"`
		Code       *string `json:"code"`
		Token      *string `json:"token"`
		ClientName *string `json:"client_name"`
		RepoID     *string `json:"repo_id"`
		ModelName  *string `json:"model_name"`
	}
	trimmed := bytes.TrimSpace(line)
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}
	if raw.Action == nil {
		return Request{}, ErrMissingAction
	}
	return Request{
		Action:     Action(*raw.Action),
		Code:       raw.Code,
		Token:      raw.Token,
		ClientName: raw.ClientName,
		RepoID:     raw.RepoID,
		ModelName:  raw.ModelName,
	}, nil
}

// ParseResponse decodes one response line.
func ParseResponse(line []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(bytes.TrimSpace(line), &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// EncodeLine marshals v as a single newline-terminated JSON line.
func EncodeLine(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// StringValue dereferences an optional field, treating nil as empty.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
