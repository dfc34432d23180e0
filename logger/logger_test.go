package logger

import (
	"context"
	"testing"

	"google.golang.org/grpc/metadata"
)

// Times FromContext on a context carrying a trace id in its incoming gRPC
// metadata. FromContext takes the trace id from the opentracing span only,
// so with no span on this context the logger comes back unchanged.
func BenchmarkWrappedLogger_FromContextTraceID(b *testing.B) {
	tests := []struct {
		name string
	}{
		{
			name: "positive",
		},
	}
	for _, test := range tests {
		b.Run(test.name, func(b *testing.B) {

			New("NOOP")

			ctx := metadata.NewIncomingContext(context.Background(), metadata.MD{TraceIDKey: {"foobar"}})
			for n := 0; n < b.N; n++ {
				func(inctx context.Context) {
					log := Sugar.FromContext(inctx)
					defer log.Close()
				}(ctx)
			}
		})
	}
}
