package test

import (
	"batchexecute/client"
	"batchexecute/codec"
	"batchexecute/loadbalance"
	"batchexecute/message"
	"batchexecute/registry"
	"context"
	"fmt"
	"testing"
)

func benchCalls(n int) []message.Call {
	calls := make([]message.Call, n)
	for i := range calls {
		calls[i] = message.NewCall(fmt.Sprintf("rpc%d", i), "arg", i, map[string]any{"nested": []int{1, 2, 3}})
	}
	return calls
}

func benchResponse(b *testing.B, n int, rt codec.ResponseType) string {
	frames := make([]message.Frame, n)
	for i := range frames {
		frames[i] = message.Frame{Index: i + 1, RPCID: fmt.Sprintf("rpc%d", i), Payload: []byte(`[["result",1,null,{"k":"v"}]]`)}
	}
	body, err := codec.EncodeResponse(frames, rt)
	if err != nil {
		b.Fatal(err)
	}
	return string(body)
}

func BenchmarkEncode(b *testing.B) {
	calls := benchCalls(10)
	cfg := codec.Config{Host: "example.com", App: "App", ResponseType: codec.ResponseTypeCompressed}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := codec.Encode(calls, cfg); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecodeCompressed(b *testing.B) {
	raw := benchResponse(b, 10, codec.ResponseTypeCompressed)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := codec.Decode(raw, codec.ResponseTypeCompressed, codec.DecodeOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecodeDefault(b *testing.B) {
	raw := benchResponse(b, 10, codec.ResponseTypeDefault)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := codec.Decode(raw, codec.ResponseTypeDefault, codec.DecodeOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}

func setupClient(b *testing.B) *client.Client {
	b.Helper()
	_, ep := startServer(b)
	cli, err := client.New(registry.NewStatic("arith", ep), &loadbalance.RoundRobin{}, nil)
	if err != nil {
		b.Fatal(err)
	}
	return cli
}

func BenchmarkSerialCall(b *testing.B) {
	cli := setupClient(b)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var sum int
		if err := cli.Invoke(ctx, "arith", "add", &sum, i, 1); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConcurrentCall(b *testing.B) {
	cli := setupClient(b)
	ctx := context.Background()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			var sum int
			if err := cli.Invoke(ctx, "arith", "add", &sum, 1, 2); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
