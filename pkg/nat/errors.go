package nat

import "errors"

var (
	ErrPortInUse     = errors.New("nat: virtual port already in use")
	ErrNoSuchPort    = errors.New("nat: no mapping for virtual port")
	ErrNotConnected  = errors.New("nat: port not in connected state")
	ErrHostListen    = errors.New("nat: host listen failed")
	ErrHostDial      = errors.New("nat: host dial failed")
	ErrPortsExhausted = errors.New("nat: virtual port space exhausted")
)
