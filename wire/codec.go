package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Channel distinguishes the reliable and unreliable delivery disciplines
// that share this wire format and socket (§3).
type Channel byte

const (
	ChannelReliable   Channel = 0x00
	ChannelUnreliable Channel = 0x01
)

// packetTypeACK is the first byte of an ACK frame; it can never collide
// with a Channel value, which is how is_ack discriminates frames on
// receive (§3 "Packet discrimination").
const packetTypeACK = 0x02

// MaxPayloadSize is the largest payload the codec will encode (§3). It
// is sized to fit a conservative Ethernet MTU minus IPv4/UDP overhead and
// the 9-byte data header; there is no fragmentation path for larger
// payloads (spec §1 non-goals).
const MaxPayloadSize = 1391

const (
	dataHeaderSize = 9
	ackSize        = 7
)

// ErrMalformed is returned by Decode/DecodeACK when a buffer cannot be
// parsed as a well-formed frame (§7).
var ErrMalformed = errors.New("wire: malformed packet")

// ErrPayloadTooLarge is returned by Encode when payload exceeds
// MaxPayloadSize (§3, §7).
var ErrPayloadTooLarge = fmt.Errorf("wire: payload exceeds %d bytes", MaxPayloadSize)

// Data is the decoded form of a DATA frame (§3).
type Data struct {
	Channel   Channel
	Seq       uint16
	Timestamp uint32
	Payload   []byte
}

// ACK is the decoded form of an ACK frame (§3).
type ACK struct {
	AckNo     uint16
	Timestamp uint32
}

// nowMillis returns the current wall clock as a 32-bit millisecond
// counter, wrapping modulo 2^32 (§3 "Wire timestamp").
func nowMillis() uint32 {
	return uint32(time.Now().UnixMilli())
}

// Encode serializes a DATA frame, reading a fresh wall-clock timestamp
// at call time (§4.1).
func Encode(channel Channel, seqNo uint16, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	buf := make([]byte, dataHeaderSize+len(payload))
	buf[0] = byte(channel)
	binary.BigEndian.PutUint16(buf[1:3], seqNo)
	binary.BigEndian.PutUint32(buf[3:7], nowMillis())
	binary.BigEndian.PutUint16(buf[7:9], uint16(len(payload)))
	copy(buf[9:], payload)
	return buf, nil
}

// EncodeWithTimestamp serializes a DATA frame using an explicit
// timestamp rather than the wall clock, for callers (such as tests) that
// need a known timestamp in the frame. The reliable sender does not use
// it: a retransmission resends the originally encoded bytes, so the
// original timestamp is kept without re-encoding.
func EncodeWithTimestamp(channel Channel, seqNo uint16, timestamp uint32, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	buf := make([]byte, dataHeaderSize+len(payload))
	buf[0] = byte(channel)
	binary.BigEndian.PutUint16(buf[1:3], seqNo)
	binary.BigEndian.PutUint32(buf[3:7], timestamp)
	binary.BigEndian.PutUint16(buf[7:9], uint16(len(payload)))
	copy(buf[9:], payload)
	return buf, nil
}

// Decode parses a DATA frame (§4.1). It fails with ErrMalformed if the
// buffer is shorter than the fixed header or the declared payload_len
// disagrees with the remaining bytes.
func Decode(buf []byte) (Data, error) {
	if len(buf) < dataHeaderSize {
		return Data{}, ErrMalformed
	}

	channel := Channel(buf[0])
	if channel != ChannelReliable && channel != ChannelUnreliable {
		return Data{}, ErrMalformed
	}

	seqNo := binary.BigEndian.Uint16(buf[1:3])
	timestamp := binary.BigEndian.Uint32(buf[3:7])
	payloadLen := binary.BigEndian.Uint16(buf[7:9])

	if len(buf)-dataHeaderSize != int(payloadLen) {
		return Data{}, ErrMalformed
	}

	payload := make([]byte, payloadLen)
	copy(payload, buf[dataHeaderSize:])

	return Data{
		Channel:   channel,
		Seq:       seqNo,
		Timestamp: timestamp,
		Payload:   payload,
	}, nil
}

// EncodeACK serializes an ACK frame, echoing the timestamp from the DATA
// frame being acknowledged (§4.1).
func EncodeACK(ackNo uint16, timestamp uint32) []byte {
	buf := make([]byte, ackSize)
	buf[0] = packetTypeACK
	binary.BigEndian.PutUint16(buf[1:3], ackNo)
	binary.BigEndian.PutUint32(buf[3:7], timestamp)
	return buf
}

// DecodeACK parses an ACK frame (§4.1).
func DecodeACK(buf []byte) (ACK, error) {
	if len(buf) < ackSize || buf[0] != packetTypeACK {
		return ACK{}, ErrMalformed
	}
	return ACK{
		AckNo:     binary.BigEndian.Uint16(buf[1:3]),
		Timestamp: binary.BigEndian.Uint32(buf[3:7]),
	}, nil
}

// IsACK reports whether buf's first byte discriminates it as an ACK
// frame (§3 "Packet discrimination").
func IsACK(buf []byte) bool {
	return len(buf) >= 1 && buf[0] == packetTypeACK
}

// Latency computes the modular wrap-tolerant difference between an
// arrival timestamp and the frame's embedded timestamp (§3, §4.6).
func Latency(arrival, timestamp uint32) uint32 {
	return arrival - timestamp
}

// NowMillis exposes the wall-clock millisecond reading used for the
// timestamp field and for latency measurement, so callers measuring
// latency against a Data's Timestamp use the same clock Encode does.
func NowMillis() uint32 {
	return nowMillis()
}
