// Package ctlsock defines the JSON wire messages exchanged over cryfs's
// control socket: a local, peer-UID-checked Unix socket a running mount
// exposes for diagnostics.
package ctlsock

// RequestStruct is a single control-socket request. Command selects the
// query; BlockID is only meaningful for Command == "stat".
type RequestStruct struct {
	Command string `json:"Command"`
	BlockID string `json:"BlockID,omitempty"`
}

// ResponseStruct is the reply to a RequestStruct.
type ResponseStruct struct {
	Result   string `json:"Result"`
	ErrText  string `json:"ErrText,omitempty"`
	ErrNo    int32  `json:"ErrNo,omitempty"`
	WarnText string `json:"WarnText,omitempty"`
}
