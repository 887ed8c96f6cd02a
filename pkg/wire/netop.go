package wire

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/replicode/replicode/internal/errx"
)

// NetOpKind identifies which virtual-socket call a NetworkOperation
// requests or reports on.
type NetOpKind string

const (
	NetOpListen  NetOpKind = "listen"
	NetOpAccept  NetOpKind = "accept"
	NetOpConnect NetOpKind = "connect"
	NetOpSend    NetOpKind = "send"
	NetOpRecv    NetOpKind = "recv"
	NetOpClose   NetOpKind = "close"
)

// NetStatus is the three-state result of a NAT table operation:
// a pending operation reports Waiting until the host socket is ready.
type NetStatus uint8

const (
	StatusFailure NetStatus = 0
	StatusSuccess NetStatus = 1
	StatusWaiting NetStatus = 2
)

// NetworkOperation is the payload carried by NetworkIn/NetworkOut
// records. It is CBOR-encoded, mirroring the length-prefixed CBOR
// request/response framing the guest filesystem bridge uses.
type NetworkOperation struct {
	Kind NetOpKind `cbor:"kind"`

	// Request fields.
	LocalPort  uint16 `cbor:"local_port,omitempty"`
	RemotePort uint16 `cbor:"remote_port,omitempty"`
	RemoteHost string `cbor:"remote_host,omitempty"`
	Data       []byte `cbor:"data,omitempty"`

	// Response fields.
	Status   NetStatus `cbor:"status"`
	NewPort  uint16    `cbor:"new_port,omitempty"`
	RecvData []byte    `cbor:"recv_data,omitempty"`
}

// EncodeNetworkOperation CBOR-encodes op for use as a Record payload.
func EncodeNetworkOperation(op NetworkOperation) ([]byte, error) {
	b, err := cbor.Marshal(op)
	if err != nil {
		return nil, errx.Wrap(ErrEncodeNetOp, err)
	}
	return b, nil
}

// DecodeNetworkOperation decodes a NetworkOperation from a Record
// payload produced by EncodeNetworkOperation.
func DecodeNetworkOperation(payload []byte) (NetworkOperation, error) {
	var op NetworkOperation
	if err := cbor.Unmarshal(payload, &op); err != nil {
		return NetworkOperation{}, errx.Wrap(ErrDecodeNetOp, err)
	}
	return op, nil
}
