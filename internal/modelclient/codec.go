package modelclient

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec lets the model-RPC client speak JSON payloads over gRPC's
// framing instead of requiring protoc-generated protobuf stubs, which
// this workspace has no way to generate. Wire framing, flow control,
// deadlines and load balancing all still come from google.golang.org/grpc;
// only the payload encoding differs from Clipper's original protobuf
// wire format (see SPEC_FULL.md's Domain Stack section).
type jsonCodec struct{}

const codecName = "json"

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
