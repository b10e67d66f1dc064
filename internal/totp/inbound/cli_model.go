package inbound

import "encoding/json"

type EnrollResponse struct {
	KeyID    string          `json:"kid"`
	URI      string          `json:"uri"`
	Envelope json.RawMessage `json:"envelope"`
}

type VerifyResponse struct {
	User     string `json:"user"`
	Accepted bool   `json:"accepted"`
}

type RotateResponse struct {
	KeyID    string          `json:"kid"`
	Rotated  bool            `json:"rotated"`
	Envelope json.RawMessage `json:"envelope"`
}
