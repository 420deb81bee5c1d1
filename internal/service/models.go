package service

import (
	"errors"

	"github.com/InsulaLabs/msdscript/pkg/interp"
	"github.com/InsulaLabs/msdscript/pkg/parse"
)

type EvalRequest struct {
	Source string `json:"source"`
}

type BatchRequest struct {
	Mode    string   `json:"mode"`
	Sources []string `json:"sources"`
}

type ErrorBody struct {
	Kind    string `json:"kind"` // parse, runtime or request
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

type EvalResponse struct {
	Result string     `json:"result,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

type BatchResponse struct {
	Results []EvalResponse `json:"results"`
}

type PingResponse struct {
	Status         string `json:"status"`
	Uptime         string `json:"uptime"`
	ActiveSessions int32  `json:"activeSessions"`
	Cache          any    `json:"cache"`
}

// SessionRequest is one websocket frame from the client. Mode "def" binds
// Name to the value of Source for the rest of the connection.
type SessionRequest struct {
	Mode   string `json:"mode"`
	Name   string `json:"name,omitempty"`
	Source string `json:"source"`
}

type SessionReply struct {
	Session string     `json:"session,omitempty"`
	Result  string     `json:"result,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

func errorBody(err error) *ErrorBody {
	var pe *parse.ParseError
	if errors.As(err, &pe) {
		return &ErrorBody{Kind: "parse", Message: pe.Message, Line: pe.Line, Column: pe.Column}
	}
	var re *interp.RuntimeError
	if errors.As(err, &re) {
		return &ErrorBody{Kind: "runtime", Reason: string(re.Kind), Message: re.Message}
	}
	return &ErrorBody{Kind: "request", Message: err.Error()}
}

func evalResponse(out string, err error) EvalResponse {
	if err != nil {
		return EvalResponse{Error: errorBody(err)}
	}
	return EvalResponse{Result: out}
}
