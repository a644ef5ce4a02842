package server

import (
	"batchexecute/codec"
	"batchexecute/message"
	"batchexecute/middleware"
	"batchexecute/registry"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

type addArgs struct {
	A, B int
}

func (a *addArgs) UnmarshalJSON(b []byte) error {
	var pair [2]int
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	a.A, a.B = pair[0], pair[1]
	return nil
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	svr := New()
	must(t, svr.Register("add", func(ctx context.Context, args addArgs) (int, error) {
		return args.A + args.B, nil
	}))
	must(t, svr.Register("echo", func(ctx context.Context, args []any) ([]any, error) {
		return args, nil
	}))
	must(t, svr.Register("fail", func(ctx context.Context, args []any) (any, error) {
		return nil, errors.New("boom")
	}))
	ts := httptest.NewServer(svr)
	t.Cleanup(ts.Close)
	return svr, ts
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func post(t *testing.T, ts *httptest.Server, rt codec.ResponseType, calls ...message.Call) ([]message.Frame, error) {
	t.Helper()
	req, err := codec.Encode(calls, codec.Config{URL: ts.URL + "/_/TestApp/data/batchexecute", ResponseType: rt})
	if err != nil {
		t.Fatal(err)
	}
	httpReq, err := req.NewHTTPRequest(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	resp, err := ts.Client().Do(httpReq)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != contentType {
		t.Fatalf("unexpected content type %q", ct)
	}
	return codec.Decode(string(body), rt, codec.DecodeOptions{Strict: true, ExpectedRPCIDs: req.RPCIDs})
}

func TestServeBatch(t *testing.T) {
	_, ts := newTestServer(t)

	for _, rt := range []codec.ResponseType{codec.ResponseTypeDefault, codec.ResponseTypeCompressed} {
		frames, err := post(t, ts, rt, message.NewCall("add", 1, 2), message.NewCall("echo", "x", true))
		if err != nil {
			t.Fatalf("rt %q: %v", rt, err)
		}
		if len(frames) != 2 {
			t.Fatalf("rt %q: expect 2 frames, got %d", rt, len(frames))
		}
		if frames[0].RPCID != "add" || string(frames[0].Payload) != "3" {
			t.Errorf("rt %q: unexpected add frame %+v", rt, frames[0])
		}
		if frames[1].RPCID != "echo" || string(frames[1].Payload) != `["x",true]` {
			t.Errorf("rt %q: unexpected echo frame %s", rt, frames[1].Payload)
		}
	}
}

func TestServeSingleCall(t *testing.T) {
	_, ts := newTestServer(t)

	frames, err := post(t, ts, codec.ResponseTypeCompressed, message.NewCall("add", 10, 20))
	if err != nil {
		t.Fatal(err)
	}
	if frames[0].Index != 1 || string(frames[0].Payload) != "30" {
		t.Fatalf("unexpected frame %+v", frames[0])
	}
}

func TestServeFailedCall(t *testing.T) {
	_, ts := newTestServer(t)

	for _, id := range []string{"fail", "missing"} {
		_, err := post(t, ts, codec.ResponseTypeDefault, message.NewCall("add", 1, 1), message.NewCall(id))
		var de *codec.DecodeError
		if !errors.As(err, &de) || !errors.Is(err, codec.ErrInvalidFramePayload) {
			t.Fatalf("%s: expect invalid frame payload, got %v", id, err)
		}
		if de.RPCID != id {
			t.Fatalf("%s: error names %q", id, de.RPCID)
		}
	}
}

func TestServeBadRequests(t *testing.T) {
	_, ts := newTestServer(t)
	endpoint := ts.URL + "/_/TestApp/data/batchexecute"

	resp, err := ts.Client().Get(endpoint)
	must(t, err)
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET: expect 405, got %d", resp.StatusCode)
	}

	cases := []struct {
		name   string
		url    string
		form   url.Values
		status int
	}{
		{"wrong path", ts.URL + "/_/TestApp/data/other", url.Values{"f.req": {`[[["add","[1,2]",null,"generic"]]]`}}, http.StatusNotFound},
		{"missing f.req", endpoint, url.Values{"at": {"x"}}, http.StatusBadRequest},
		{"bad f.req", endpoint, url.Values{"f.req": {`{}`}}, http.StatusBadRequest},
		{"args not array", endpoint, url.Values{"f.req": {`[[["add","{}",null,"generic"]]]`}}, http.StatusBadRequest},
		{"bad rt", endpoint + "?rt=b", url.Values{"f.req": {`[[["add","[1,2]",null,"generic"]]]`}}, http.StatusBadRequest},
	}
	for _, c := range cases {
		resp, err := ts.Client().PostForm(c.url, c.form)
		must(t, err)
		resp.Body.Close()
		if resp.StatusCode != c.status {
			t.Errorf("%s: expect %d, got %d", c.name, c.status, resp.StatusCode)
		}
	}
}

func TestRegisterInvalid(t *testing.T) {
	svr := New()
	bad := []any{
		42,
		nil,
		func(args []any) (any, error) { return nil, nil },
		func(ctx context.Context, args []any) any { return nil },
		func(ctx context.Context, args []any) (any, string) { return nil, "" },
	}
	for i, fn := range bad {
		if err := svr.Register("x", fn); err == nil {
			t.Errorf("case %d: expect error", i)
		}
	}
	if err := svr.Register("", func(ctx context.Context, args []any) (any, error) { return nil, nil }); err == nil {
		t.Error("expect error for empty rpc id")
	}
}

func TestUseMiddleware(t *testing.T) {
	svr, ts := newTestServer(t)

	seen := make(chan string, 1)
	svr.Use(func(next middleware.HandlerFunc) middleware.HandlerFunc {
		return func(ctx context.Context, batch *message.Batch) ([]message.Frame, error) {
			seen <- batch.Service + ":" + strings.Join(batch.RPCIDs(), ",")
			return next(ctx, batch)
		}
	})

	if _, err := post(t, ts, codec.ResponseTypeCompressed, message.NewCall("add", 1, 2)); err != nil {
		t.Fatal(err)
	}
	if got := <-seen; got != "TestApp:add" {
		t.Fatalf("middleware saw %q", got)
	}
}

func TestServiceName(t *testing.T) {
	cases := map[string]string{
		"/_/TranslateWebserverUi/data/batchexecute":     "TranslateWebserverUi",
		"/u/1/_/TranslateWebserverUi/data/batchexecute": "TranslateWebserverUi",
		"/custom/data/batchexecute":                     "custom",
	}
	for path, want := range cases {
		if got := serviceName(path); got != want {
			t.Errorf("serviceName(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestAdvertiseAndShutdown(t *testing.T) {
	reg := registry.NewStatic("translate")
	svr := New()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	must(t, err)
	done := make(chan error, 1)
	go func() { done <- svr.Serve(l) }()

	ctx := context.Background()
	ep := registry.Endpoint{URL: "http://" + l.Addr().String() + "/_/App/data/batchexecute"}
	must(t, svr.Advertise(ctx, reg, "translate", ep, 10))

	// Any response means Serve is running.
	resp, err := http.Get("http://" + l.Addr().String() + "/")
	must(t, err)
	resp.Body.Close()

	eps, err := reg.Discover(ctx, "translate")
	must(t, err)
	if len(eps) != 1 || eps[0].URL != ep.URL {
		t.Fatalf("unexpected endpoints %v", eps)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	must(t, svr.Shutdown(shutdownCtx))

	if _, err := reg.Discover(ctx, "translate"); !errors.Is(err, registry.ErrNoService) {
		t.Fatalf("expect endpoint withdrawn, got %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}
