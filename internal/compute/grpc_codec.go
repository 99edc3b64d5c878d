package compute

import (
	"encoding/json"
	"sync"

	"google.golang.org/grpc/encoding"
)

// GRPCJSONCodecName is the content subtype clients must request.
const GRPCJSONCodecName = "json"

var registerCodecOnce sync.Once

// grpcJSONCodec carries the computeproto messages as JSON so the service
// needs no generated protobuf code.
type grpcJSONCodec struct{}

func (grpcJSONCodec) Name() string { return GRPCJSONCodecName }

func (grpcJSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (grpcJSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// EnsureGRPCJSONCodec registers the JSON codec used between the remote
// provider and compute agents. Both sides must call it before dialing or serving.
func EnsureGRPCJSONCodec() {
	registerCodecOnce.Do(func() {
		encoding.RegisterCodec(grpcJSONCodec{})
	})
}
