package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"batchexecute/client"
	"batchexecute/codec"
	"batchexecute/config"
	"batchexecute/message"
	"batchexecute/middleware"
	"batchexecute/transport"
)

func runCall(ctx context.Context, cfg config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	service := fs.String("service", cfg.Service, "Service to send the batch to")
	if err := fs.Parse(args); err != nil {
		return err
	}

	calls, err := parseCalls(fs.Args())
	if err != nil {
		return err
	}

	reg, err := openRegistry(cfg)
	if err != nil {
		return err
	}
	defer reg.Close()
	bal, err := openBalancer(cfg)
	if err != nil {
		return err
	}

	var tr transport.Transport = transport.NewHTTP(
		&http.Client{Timeout: time.Duration(cfg.Client.TimeoutMS) * time.Millisecond},
		transport.WithMaxBodySize(int64(cfg.Client.MaxBodyBytes)),
	)
	tr = transport.NewPool(tr, cfg.Client.MaxConcurrency)

	mws := []middleware.Middleware{middleware.Logging(logger)}
	if cfg.Client.RateLimit > 0 {
		mws = append(mws, middleware.RateLimit(cfg.Client.RateLimit, cfg.Client.RateBurst))
	}
	if cfg.Client.TimeoutMS > 0 {
		mws = append(mws, middleware.Timeout(time.Duration(cfg.Client.TimeoutMS)*time.Millisecond))
	}

	c, err := client.New(reg, bal, tr,
		client.WithLogger(logger),
		client.WithResponseType(codec.ResponseType(cfg.Client.ResponseType)),
		client.WithStrict(cfg.Client.Strict),
		client.WithProfile(cfg.ClientProfile()),
		client.WithRequestID(cfg.Client.RequestID),
		client.WithParams(cfg.Client.Params),
		client.WithBody(cfg.Client.Body),
		client.WithHeaders(cfg.Client.Headers),
		client.WithMiddleware(mws...),
	)
	if err != nil {
		return err
	}

	frames, err := c.Call(ctx, *service, calls...)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	for _, f := range frames {
		if err := enc.Encode(struct {
			Index   int             `json:"index"`
			RPCID   string          `json:"rpcid"`
			Payload json.RawMessage `json:"payload"`
		}{f.Index, f.RPCID, f.Payload}); err != nil {
			return err
		}
	}
	return nil
}

// parseCalls reads "rpcid [json-args]" sequences. An argument starting
// with '[' is the args array of the preceding rpc id.
func parseCalls(args []string) ([]message.Call, error) {
	if len(args) == 0 {
		return nil, errors.New("call: at least one rpc id is required")
	}
	var calls []message.Call
	for i := 0; i < len(args); i++ {
		call := message.NewCall(args[i])
		if i+1 < len(args) && strings.HasPrefix(strings.TrimSpace(args[i+1]), "[") {
			i++
			if err := json.Unmarshal([]byte(args[i]), &call.Args); err != nil {
				return nil, fmt.Errorf("call %s: args must be a JSON array: %w", call.RPCID, err)
			}
			if call.Args == nil {
				call.Args = []any{}
			}
		}
		calls = append(calls, call)
	}
	return calls, nil
}
