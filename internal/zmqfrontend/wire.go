// Wire framing for the ZMQ frontend, per spec.md §4.5's request and
// response message layouts: little-endian length-prefixed fields,
// exactly the binary style of the original Clipper implementation's
// frontend_rpc_service (original_source/src/zmq_frontend).
package zmqfrontend

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/clipper-go/predictserve/internal/model"
)

// inputTypeCode/outputTypeCode values, matching spec.md §4.5 field 4's
// enumeration order.
const (
	typeCodeF64 byte = iota
	typeCodeF32
	typeCodeI32
	typeCodeByte
	typeCodeString
)

func typeCodeOf(t model.InputType) (byte, error) {
	switch t {
	case model.InputTypeF64:
		return typeCodeF64, nil
	case model.InputTypeF32:
		return typeCodeF32, nil
	case model.InputTypeI32:
		return typeCodeI32, nil
	case model.InputTypeByte:
		return typeCodeByte, nil
	case model.InputTypeString:
		return typeCodeString, nil
	default:
		return 0, fmt.Errorf("unrecognized input type %v", t)
	}
}

func elementSize(code byte) (int, error) {
	switch code {
	case typeCodeF64:
		return 8, nil
	case typeCodeF32, typeCodeI32:
		return 4, nil
	case typeCodeByte, typeCodeString:
		return 1, nil
	default:
		return 0, fmt.Errorf("unrecognized type code %d", code)
	}
}

// decodedRequest is the parsed form of spec.md §4.5's request message
// layout, still pointing into the caller-supplied payload buffer (the
// frontend copies InputBytes into the arena after decodeRequest returns).
type decodedRequest struct {
	ClientID   uint64
	RequestID  uint32
	AppName    string
	TypeCode   byte
	ElemCount  int
	InputBytes []byte
}

// decodeRequest parses fields 1-6 of spec.md §4.5's request layout. It
// returns a plain error on a truncated payload or an unknown type code;
// the ZMQ frontend logs it and drops the request rather than replying
// with a 400 body the way HTTP does.
func decodeRequest(payload []byte) (decodedRequest, error) {
	var req decodedRequest
	off := 0

	readU32 := func() (uint32, error) {
		if off+4 > len(payload) {
			return 0, fmt.Errorf("truncated payload at offset %d", off)
		}
		v := binary.LittleEndian.Uint32(payload[off : off+4])
		off += 4
		return v, nil
	}

	clientID, err := readU32()
	if err != nil {
		return req, err
	}
	req.ClientID = uint64(clientID)

	requestID, err := readU32()
	if err != nil {
		return req, err
	}
	req.RequestID = requestID

	appNameLen, err := readU32()
	if err != nil {
		return req, err
	}
	if off+int(appNameLen) > len(payload) {
		return req, fmt.Errorf("truncated app_name at offset %d", off)
	}
	req.AppName = string(payload[off : off+int(appNameLen)])
	off += int(appNameLen)

	if off+1 > len(payload) {
		return req, fmt.Errorf("truncated input_type_code at offset %d", off)
	}
	req.TypeCode = payload[off]
	off++

	elemCount, err := readU32()
	if err != nil {
		return req, err
	}
	req.ElemCount = int(elemCount)

	size, err := elementSize(req.TypeCode)
	if err != nil {
		return req, err
	}
	byteLen := req.ElemCount * size
	if off+byteLen > len(payload) {
		return req, fmt.Errorf("truncated input_bytes at offset %d", off)
	}
	req.InputBytes = payload[off : off+byteLen]

	return req, nil
}

// decodeInputTensor interprets InputBytes according to TypeCode,
// producing a model.InputTensor whose typed slice is a fresh copy —
// never a view into the arena, since the arena's range may be recycled
// as soon as the response is sent.
func decodeInputTensor(req decodedRequest) (model.InputTensor, error) {
	switch req.TypeCode {
	case typeCodeF64:
		out := make([]float64, req.ElemCount)
		for i := range out {
			bits := binary.LittleEndian.Uint64(req.InputBytes[i*8 : i*8+8])
			out[i] = math.Float64frombits(bits)
		}
		return model.InputTensor{Type: model.InputTypeF64, Doubles: out}, nil
	case typeCodeF32:
		out := make([]float32, req.ElemCount)
		for i := range out {
			bits := binary.LittleEndian.Uint32(req.InputBytes[i*4 : i*4+4])
			out[i] = math.Float32frombits(bits)
		}
		return model.InputTensor{Type: model.InputTypeF32, Floats: out}, nil
	case typeCodeI32:
		out := make([]int32, req.ElemCount)
		for i := range out {
			out[i] = int32(binary.LittleEndian.Uint32(req.InputBytes[i*4 : i*4+4]))
		}
		return model.InputTensor{Type: model.InputTypeI32, Ints: out}, nil
	case typeCodeByte:
		out := make([]byte, req.ElemCount)
		copy(out, req.InputBytes)
		return model.InputTensor{Type: model.InputTypeByte, Bytes: out}, nil
	case typeCodeString:
		out := make([]string, req.ElemCount)
		for i := range out {
			out[i] = string(req.InputBytes[i : i+1])
		}
		return model.InputTensor{Type: model.InputTypeString, Strings: out}, nil
	default:
		return model.InputTensor{}, fmt.Errorf("unrecognized type code %d", req.TypeCode)
	}
}

// encodeHandshakeAck renders the 4-byte client-id response from
// spec.md §4.5's handshake protocol. client_id is carried as a 64-bit
// value everywhere else in this package (headroom for very long-running
// deployments); the wire handshake response is defined as 4 bytes, so
// only the low 32 bits are sent — unreachable in practice since a
// single process would need over four billion handshakes first.
func encodeHandshakeAck(clientID uint64) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(clientID))
	return buf
}

// encodeOutputValue renders a scalar prediction as an 8-byte
// little-endian f64, the wire type every response carries regardless of
// the application's input_type — the response's "predicted value" in
// spec.md §3 is always a single real number.
func encodeOutputValue(output float64) (byte, []byte) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(output))
	return typeCodeF64, buf
}

// encodeResponse renders spec.md §4.5's response message layout for a
// scalar output value plus its lineage JSON blob.
func encodeResponse(requestID uint32, outputTypeCode byte, output []byte, lineageJSON []byte) []byte {
	buf := make([]byte, 0, 4+1+4+len(output)+4+len(lineageJSON))
	var tmp [4]byte

	binary.LittleEndian.PutUint32(tmp[:], requestID)
	buf = append(buf, tmp[:]...)

	buf = append(buf, outputTypeCode)

	binary.LittleEndian.PutUint32(tmp[:], uint32(len(output)))
	buf = append(buf, tmp[:]...)
	buf = append(buf, output...)

	binary.LittleEndian.PutUint32(tmp[:], uint32(len(lineageJSON)))
	buf = append(buf, tmp[:]...)
	buf = append(buf, lineageJSON...)

	return buf
}
