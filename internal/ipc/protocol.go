// Package ipc carries interview commands over a unix socket as JSON lines.
package ipc

// Request is one command sent to the running interview session.
type Request struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// Response is the session's reply. State is the session phase after the
// command ran.
type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
