// Package server implements a batchexecute endpoint as an http.Handler.
//
// Request processing pipeline:
//
//	POST /_/{app}/data/batchexecute
//	  → ParseForm → codec.ParseRequest(f.req) → Middleware Chain
//	    → dispatch (one goroutine per call, reflect.Call) → codec.EncodeResponse(rt)
//
// A call whose rpc id is unknown, or whose handler fails, is answered as a
// failed call so that the rest of the batch still succeeds.
package server

import (
	"batchexecute/codec"
	"batchexecute/message"
	"batchexecute/middleware"
	"batchexecute/registry"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	pathSuffix  = "/data/batchexecute"
	contentType = "application/json; charset=utf-8"
)

// Server is safe for concurrent use. Register and Use may be called while
// serving; they affect subsequent requests.
type Server struct {
	logger *slog.Logger

	mu          sync.RWMutex
	methods     map[string]*method      // rpc id -> implementation
	middlewares []middleware.Middleware // Applied in the order added
	handler     middleware.HandlerFunc  // middleware(...(dispatch))

	wg       sync.WaitGroup // In-flight requests
	shutdown atomic.Bool
	http     *http.Server

	registry   registry.Registry
	advertised []advertisement
}

type advertisement struct {
	service string
	key     string
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

func New(opts ...Option) *Server {
	s := &Server{
		logger:  slog.Default(),
		methods: make(map[string]*method),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "server"))
	s.handler = s.dispatch
	return s
}

// Register binds rpcID to fn, which must have the signature
// func(context.Context, A) (R, error). A receives the call's args array.
func (s *Server) Register(rpcID string, fn any) error {
	m, err := newMethod(rpcID, fn)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.methods[rpcID] = m
	s.mu.Unlock()
	return nil
}

// Use appends a middleware around dispatch.
func (s *Server) Use(mw middleware.Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middlewares = append(s.middlewares, mw)
	s.handler = middleware.Chain(s.middlewares...)(s.dispatch)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.wg.Add(1)
	defer s.wg.Done()

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !strings.HasSuffix(r.URL.Path, pathSuffix) {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form: "+err.Error(), http.StatusBadRequest)
		return
	}

	freq := r.PostForm.Get(codec.FieldRequest)
	if freq == "" {
		http.Error(w, "missing "+codec.FieldRequest, http.StatusBadRequest)
		return
	}
	rt := codec.ResponseType(r.URL.Query().Get(codec.ParamResponseType))
	if _, err := codec.GetDecoder(rt); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	envelopes, err := codec.ParseRequest(freq)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	batch := &message.Batch{Service: serviceName(r.URL.Path), Calls: make([]message.Call, len(envelopes))}
	indexes := make([]int, len(envelopes))
	for i, env := range envelopes {
		if indexes[i], err = env.Index(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		args, err := decodeArgs(env.Args)
		if err != nil {
			http.Error(w, fmt.Sprintf("envelope %d (%s): %v", i+1, env.RPCID, err), http.StatusBadRequest)
			return
		}
		batch.Calls[i] = message.Call{RPCID: env.RPCID, Args: args}
	}

	s.mu.RLock()
	handler := s.handler
	s.mu.RUnlock()

	frames, err := handler(r.Context(), batch)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, middleware.ErrTimeout) {
			status = http.StatusGatewayTimeout
		}
		s.logger.WarnContext(r.Context(), "batch failed",
			slog.String("service", batch.Service), slog.String("error", err.Error()))
		http.Error(w, err.Error(), status)
		return
	}
	for i := range frames {
		if i < len(indexes) {
			frames[i].Index = indexes[i]
		}
	}

	body, err := codec.EncodeResponse(frames, rt)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "failed to encode response", slog.String("error", err.Error()))
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(body)
}

// serviceName extracts {app} from a /_/{app}/data/batchexecute path.
func serviceName(path string) string {
	rest := strings.TrimSuffix(path, pathSuffix)
	if i := strings.LastIndex(rest, "/_/"); i >= 0 {
		return rest[i+len("/_/"):]
	}
	return strings.Trim(rest, "/")
}

// decodeArgs turns an args JSON array into []any, keeping numbers exact.
func decodeArgs(raw json.RawMessage) ([]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var args []any
	if err := dec.Decode(&args); err != nil {
		return nil, errors.New("args must be a JSON array")
	}
	if args == nil {
		return nil, errors.New("args must be a JSON array")
	}
	return args, nil
}

// dispatch runs every call of the batch concurrently.
func (s *Server) dispatch(ctx context.Context, batch *message.Batch) ([]message.Frame, error) {
	frames := make([]message.Frame, len(batch.Calls))
	var wg sync.WaitGroup
	for i, c := range batch.Calls {
		frames[i] = message.Frame{Index: i + 1, RPCID: c.RPCID}

		s.mu.RLock()
		m, ok := s.methods[c.RPCID]
		s.mu.RUnlock()
		if !ok {
			s.logger.WarnContext(ctx, "unknown rpc id", slog.String("rpcid", c.RPCID))
			continue
		}

		wg.Add(1)
		go func(i int, args []any) {
			defer wg.Done()
			payload, err := m.call(ctx, args)
			if err != nil {
				s.logger.WarnContext(ctx, "call failed",
					slog.String("rpcid", m.rpcID), slog.String("error", err.Error()))
				return
			}
			frames[i].Payload = payload
		}(i, c.Args)
	}
	wg.Wait()
	return frames, nil
}

// Advertise registers ep under service in reg. The entry is removed by
// Withdraw or Shutdown.
func (s *Server) Advertise(ctx context.Context, reg registry.Registry, service string, ep registry.Endpoint, ttl int64) error {
	if err := reg.Register(ctx, service, ep, ttl); err != nil {
		return fmt.Errorf("advertise %s: %w", service, err)
	}
	s.mu.Lock()
	s.registry = reg
	s.advertised = append(s.advertised, advertisement{service: service, key: ep.Key()})
	s.mu.Unlock()
	return nil
}

// Withdraw deregisters everything Advertise registered.
func (s *Server) Withdraw(ctx context.Context) error {
	s.mu.Lock()
	reg, ads := s.registry, s.advertised
	s.advertised = nil
	s.mu.Unlock()

	var errs []error
	for _, ad := range ads {
		if err := reg.Deregister(ctx, ad.service, ad.key); err != nil {
			errs = append(errs, fmt.Errorf("withdraw %s: %w", ad.service, err))
		}
	}
	return errors.Join(errs...)
}

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	s.http = &http.Server{Handler: s}
	hs := s.http
	s.mu.Unlock()

	s.logger.Info("serving", slog.String("addr", l.Addr().String()))
	err := hs.Serve(l)
	if s.shutdown.Load() && errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown withdraws advertised endpoints first so clients stop picking
// this server, then stops accepting connections and waits for in-flight
// requests until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	werr := s.Withdraw(ctx)

	s.shutdown.Store(true)
	s.mu.RLock()
	hs := s.http
	s.mu.RUnlock()

	var serr error
	if hs != nil {
		serr = hs.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(werr, serr, fmt.Errorf("waiting for in-flight requests: %w", ctx.Err()))
	}
	return errors.Join(werr, serr)
}
