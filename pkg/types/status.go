package types

// Status is the current lifecycle state of a single connection. Exactly one
// connection owns its status; observers are told when it changes and re-read
// it, the change notification itself carries no payload.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusListening    Status = "listening"
	StatusError        Status = "error"
)

func (s Status) String() string {
	return string(s)
}

// Active reports whether the connection holds live socket resources.
func (s Status) Active() bool {
	switch s {
	case StatusConnecting, StatusConnected, StatusListening:
		return true
	}
	return false
}
