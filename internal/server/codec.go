package server

import (
	"github.com/hashicorp/go-msgpack/codec"
	"google.golang.org/grpc/encoding"
)

// msgpackCodecName is registered as a grpc content subtype so the cluster
// control-plane service can run without a protoc-generated wire format: no
// .proto files exist in this repository, so rather than fabricate
// proto.Message stubs this repo rides the msgpack encoding hashicorp/raft
// already pulls in as a transitive dependency.
const msgpackCodecName = "msgpack"

func init() {
	encoding.RegisterCodec(msgpackCodec{})
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return msgpackCodecName }

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	var out []byte
	enc := codec.NewEncoderBytes(&out, msgpackHandle)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return out, nil
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	dec := codec.NewDecoderBytes(data, msgpackHandle)
	return dec.Decode(v)
}

var msgpackHandle = &codec.MsgpackHandle{}
