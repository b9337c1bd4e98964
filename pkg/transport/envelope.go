// Package transport implements the Connector/transceiver: the
// boundary that moves a device's sealed export to its neighbours, in
// simulated or real mode.
package transport

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/fcpp-project/fcpp-go/pkg/export"
	"github.com/fcpp-project/fcpp-go/pkg/node"
	"github.com/fcpp-project/fcpp-go/pkg/trace"
	"github.com/fcpp-project/fcpp-go/pkg/util"
)

// Envelope is the in-memory form of a sent export, matching
// node.Envelope exactly — transport only adds the wire encoding.
type Envelope = node.Envelope

// EncodeEnvelope serializes env as:
//
//	[sender_uid: u32_le][send_time: f64_le][len: u32_le][payload: len bytes]
//
// where payload is a sequence of entries
//
//	[trace: u64_le][type_tag: u8][value_len: u32_le][value_bytes]
//
// one per export entry, sorted by ascending trace so two runs
// serializing the same export produce identical bytes. The value_len
// field makes each entry
// self-delimiting regardless of whether its codec produces a fixed or
// variable-width encoding (string/[]byte payloads vary; int64/float64/
// bool don't), so a sequence of mixed-type entries can be walked
// without per-tag special-casing. When real is true, a trailing
// delayEighths byte is appended.
func EncodeEnvelope(env Envelope, real bool, delayEighths byte) []byte {
	traces := env.Export.Traces()
	sort.Slice(traces, func(i, j int) bool { return traces[i] < traces[j] })

	payload := make([]byte, 0, len(traces)*16)
	for _, t := range traces {
		entry, ok := env.Export.RawPayload(t)
		if !ok {
			continue
		}
		var head [13]byte
		binary.LittleEndian.PutUint64(head[0:8], uint64(t))
		head[8] = entry.Type
		binary.LittleEndian.PutUint32(head[9:13], uint32(len(entry.Bytes)))
		payload = append(payload, head[:]...)
		payload = append(payload, entry.Bytes...)
	}

	out := make([]byte, 0, 16+len(payload)+1)
	var sender [4]byte
	binary.LittleEndian.PutUint32(sender[:], env.SenderUID)
	out = append(out, sender[:]...)

	var sendTime [8]byte
	binary.LittleEndian.PutUint64(sendTime[:], math.Float64bits(env.SendTime))
	out = append(out, sendTime[:]...)

	var length [4]byte
	binary.LittleEndian.PutUint32(length[:], uint32(len(payload)))
	out = append(out, length[:]...)
	out = append(out, payload...)

	if real {
		out = append(out, delayEighths)
	}
	return out
}

// DecodeEnvelope parses the wire format EncodeEnvelope produces. When
// real is true, the trailing delay byte is expected and returned as
// delaySeconds = delayEighths/128.0. A malformed envelope is a
// protocol error: dropped by the caller, never fatal.
func DecodeEnvelope(data []byte, real bool) (env Envelope, delaySeconds float64, err error) {
	const headerLen = 16
	if len(data) < headerLen {
		return Envelope{}, 0, util.NewProtocolError(0, fmt.Sprintf("envelope too short: %d bytes", len(data)))
	}

	senderUID := binary.LittleEndian.Uint32(data[0:4])
	sendTime := math.Float64frombits(binary.LittleEndian.Uint64(data[4:12]))
	length := binary.LittleEndian.Uint32(data[12:16])

	want := headerLen + int(length)
	if real {
		want++
	}
	if len(data) != want {
		return Envelope{}, 0, util.NewProtocolError(senderUID, fmt.Sprintf("envelope length mismatch: header says %d, got %d bytes", want, len(data)))
	}

	payload := data[headerLen : headerLen+int(length)]
	builder := export.NewBuilder()
	for len(payload) > 0 {
		if len(payload) < 13 {
			return Envelope{}, 0, util.NewProtocolError(senderUID, "truncated payload entry header")
		}
		t := trace.Trace(binary.LittleEndian.Uint64(payload[0:8]))
		tag := payload[8]
		valueLen := binary.LittleEndian.Uint32(payload[9:13])
		payload = payload[13:]

		if uint32(len(payload)) < valueLen {
			return Envelope{}, 0, util.NewProtocolError(senderUID, fmt.Sprintf("truncated value for type tag %d", tag))
		}
		value := make([]byte, valueLen)
		copy(value, payload[:valueLen])
		builder.PutRaw(t, export.Payload{Type: tag, Bytes: value})
		payload = payload[valueLen:]
	}

	env = Envelope{SenderUID: senderUID, SendTime: sendTime, Export: builder.Build()}

	if real {
		delayEighths := data[len(data)-1]
		delaySeconds = float64(delayEighths) / 128.0
	}
	return env, delaySeconds, nil
}

// DelayEighths clamps a propagation delay (in simulated time units)
// to the one-byte hundred-twenty-eighths wire encoding.
// Clamping rather than erroring is intentional: a pathological metric
// producing an out-of-range delay should degrade to the representable
// extreme, not turn into a protocol fault.
func DelayEighths(dt float64) byte {
	eighths := math.Round(dt * 128)
	if eighths < 0 {
		return 0
	}
	if eighths > 255 {
		return 255
	}
	return byte(eighths)
}
