package model

// RobotIdentity is fixed for the lifetime of a host process.
type RobotIdentity struct {
	RobotName   string `json:"robot_name"`
	Nickname    string `json:"nickname"`
	RobotType   string `json:"robot_type"`
	ServicePort int    `json:"service_port"`
}

// PairingInfo is what the kiosk screen displays while pairing is open.
type PairingInfo struct {
	Code        string `json:"code"`
	ExpiresAtMs int64  `json:"expires_at_ms"`
	RobotIdentity
}

// TokenSnapshot is a versioned copy of the valid token set. Higher versions
// supersede lower ones.
type TokenSnapshot struct {
	Version uint64
	Tokens  []string
}

// TokenFile is the on-disk shape of the token store.
type TokenFile struct {
	ValidTokens []string `json:"valid_tokens"`
}

// PairResult is returned to a client after a successful pair.
type PairResult struct {
	Token string `json:"token"`
	RobotIdentity
}

// DiscoveredRobot is one discovery reply. Host is filled in from the
// datagram source address, never trusted from the payload.
type DiscoveredRobot struct {
	Host string `json:"host"`
	RobotIdentity
}

// ShowPairingResult is returned by RequestPairingModal.
type ShowPairingResult struct {
	Message string `json:"message"`
	RobotIdentity
}
