package instrumentation

import (
	"google.golang.org/grpc/metadata"
)

// MetadataCarrier adapts gRPC metadata to tracecontext.Carrier. Keys are
// lowercased by metadata itself.
type MetadataCarrier metadata.MD

// Get returns the first value for key
func (m MetadataCarrier) Get(key string) string {
	if vals := metadata.MD(m).Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// Set replaces the value for key
func (m MetadataCarrier) Set(key, value string) {
	metadata.MD(m).Set(key, value)
}
