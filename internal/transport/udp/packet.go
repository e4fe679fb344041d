// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Characteristic    | [16]byte       | 16           | Target GATT UUID        |
| Payload Length    | uint16         | 2            | Number of bytes (N)     |
| Payload           | []byte         | N            | Opaque device command   |
+-----------------------------------------------------------------------------+

The bridge on the other end forwards Payload to Characteristic on its BLE link.
*/

const headerLen = 4 + 8 + 16 + 2

// ErrShortPacket is returned when a datagram is smaller than its header says.
var ErrShortPacket = errors.New("short packet")

// Packet is one datagram to the bridge.
type Packet struct {
	Sequence       uint32
	Timestamp      time.Time
	Characteristic uuid.UUID
	Payload        []byte
}

// AppendTo writes the packed form of p to buf.
func (p Packet) AppendTo(buf *bytes.Buffer) error {
	if len(p.Payload) > math.MaxUint16 {
		return fmt.Errorf("payload of %d bytes exceeds packet limit", len(p.Payload))
	}
	err := binary.Write(buf, binary.BigEndian, p.Sequence)
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, p.Timestamp.UnixNano())
	}
	if err == nil {
		_, err = buf.Write(p.Characteristic[:])
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, uint16(len(p.Payload)))
	}
	if err == nil {
		_, err = buf.Write(p.Payload)
	}
	return err
}

// ParsePacket decodes a datagram produced by AppendTo.
func ParsePacket(b []byte) (Packet, error) {
	var p Packet
	if len(b) < headerLen {
		return p, ErrShortPacket
	}
	p.Sequence = binary.BigEndian.Uint32(b[0:4])
	p.Timestamp = time.Unix(0, int64(binary.BigEndian.Uint64(b[4:12])))
	copy(p.Characteristic[:], b[12:28])
	n := int(binary.BigEndian.Uint16(b[28:30]))
	if len(b) < headerLen+n {
		return p, ErrShortPacket
	}
	p.Payload = append([]byte(nil), b[headerLen:headerLen+n]...)
	return p, nil
}
