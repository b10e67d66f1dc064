package event

// TOTPSecurityDestination is the default subject for TOTP security events.
// It can be overridden with events.nats.subject.
const TOTPSecurityDestination string = "otpguard.totp.security"

type TOTPSecurityMessage struct {
	Kind       string `json:"kind"`
	UserID     string `json:"user_id,omitempty"`
	KeyID      string `json:"kid,omitempty"`
	Counter    int64  `json:"counter,omitempty"`
	OccurredAt int64  `json:"occurred_at"`
}
