package zmqfrontend

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildRequestPayload(clientID, requestID uint32, appName string, typeCode byte, elems []float64) []byte {
	buf := make([]byte, 0, 128)
	var tmp [4]byte

	binary.LittleEndian.PutUint32(tmp[:], clientID)
	buf = append(buf, tmp[:]...)
	binary.LittleEndian.PutUint32(tmp[:], requestID)
	buf = append(buf, tmp[:]...)
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(appName)))
	buf = append(buf, tmp[:]...)
	buf = append(buf, appName...)
	buf = append(buf, typeCode)
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(elems)))
	buf = append(buf, tmp[:]...)
	for _, e := range elems {
		var eb [8]byte
		binary.LittleEndian.PutUint64(eb[:], math.Float64bits(e))
		buf = append(buf, eb[:]...)
	}
	return buf
}

func TestDecodeRequestRoundTrip(t *testing.T) {
	payload := buildRequestPayload(7, 42, "alpha", typeCodeF64, []float64{1.0, 2.0, 3.0})
	decoded, err := decodeRequest(payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), decoded.ClientID)
	assert.Equal(t, uint32(42), decoded.RequestID)
	assert.Equal(t, "alpha", decoded.AppName)
	assert.Equal(t, typeCodeF64, decoded.TypeCode)
	assert.Equal(t, 3, decoded.ElemCount)

	tensor, err := decodeInputTensor(decoded)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.0, 2.0, 3.0}, tensor.Doubles)
}

func TestDecodeRequestTruncatedPayloadErrors(t *testing.T) {
	_, err := decodeRequest([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestEncodeResponseLayout(t *testing.T) {
	typeCode, output := encodeOutputValue(42.0)
	body := encodeResponse(7, typeCode, output, []byte(`[]`))

	requestID := binary.LittleEndian.Uint32(body[0:4])
	assert.Equal(t, uint32(7), requestID)
	assert.Equal(t, typeCodeF64, body[4])
	outputLen := binary.LittleEndian.Uint32(body[5:9])
	assert.Equal(t, uint32(8), outputLen)
}

func TestEncodeHandshakeAckIsFourBytes(t *testing.T) {
	ack := encodeHandshakeAck(12345)
	assert.Len(t, ack, 4)
	assert.Equal(t, uint32(12345), binary.LittleEndian.Uint32(ack))
}
