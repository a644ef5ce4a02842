package server

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
)

// method is a registered rpc implementation of the form
//
//	func(ctx context.Context, args A) (R, error)
//
// where args are decoded from the call's JSON array and R is encoded as
// the frame payload.
type method struct {
	rpcID   string
	fn      reflect.Value
	argType reflect.Type
}

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

func newMethod(rpcID string, fn any) (*method, error) {
	if rpcID == "" {
		return nil, fmt.Errorf("server: empty rpc id")
	}
	v := reflect.ValueOf(fn)
	if !v.IsValid() {
		return nil, fmt.Errorf("server: %s: handler must be a func, got nil", rpcID)
	}
	typ := v.Type()
	if typ.Kind() != reflect.Func {
		return nil, fmt.Errorf("server: %s: handler must be a func, got %s", rpcID, typ.Kind())
	}
	if typ.NumIn() != 2 || typ.In(0) != contextType ||
		typ.NumOut() != 2 || typ.Out(1) != errorType {
		return nil, fmt.Errorf("server: %s: handler must be func(context.Context, A) (R, error), got %s", rpcID, typ)
	}
	return &method{rpcID: rpcID, fn: v, argType: typ.In(1)}, nil
}

// call decodes args into a fresh A, invokes the handler and returns its
// result as compact JSON.
func (m *method) call(ctx context.Context, args []any) (json.RawMessage, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	argv := reflect.New(m.argType)
	if err := json.Unmarshal(raw, argv.Interface()); err != nil {
		return nil, fmt.Errorf("%s: decode args: %w", m.rpcID, err)
	}

	results := m.fn.Call([]reflect.Value{reflect.ValueOf(ctx), argv.Elem()})
	if !results[1].IsNil() {
		return nil, results[1].Interface().(error)
	}

	reply, err := json.Marshal(results[0].Interface())
	if err != nil {
		return nil, fmt.Errorf("%s: encode result: %w", m.rpcID, err)
	}
	return reply, nil
}
