package codec

import (
	"batchexecute/message"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Query parameter and form field names used on the wire.
const (
	ParamRPCIDs       = "rpcids"
	ParamRequestID    = "_reqid"
	ParamResponseType = "rt"
	FieldRequest      = "f.req"

	ContentType = "application/x-www-form-urlencoded;charset=utf-8"

	// Each request in a sequence adds this step to the request id base.
	requestIDStep = 100000
	genericToken  = "generic"
)

// Profile selects the valid range of the request id base.
type Profile int

const (
	ProfileStandard Profile = iota // Four-digit base, 1000-9999
	ProfileLegacy                  // Base in 1-99999
)

// Range returns the inclusive bounds of a request id base.
func (p Profile) Range() (lo, hi int) {
	if p == ProfileLegacy {
		return 1, 99999
	}
	return 1000, 9999
}

// Config describes where and how a batch is sent.
type Config struct {
	Host string // e.g. "translate.google.com"
	App  string // e.g. "TranslateWebserverUi"
	User string // Optional account index, adds /u/{user} to the path
	URL  string // Full URL override; Host and App are then not required

	RequestID    int // Request id base; 0 draws one at random from Profile's range
	Sequence     int // Position of this request in a sequence sharing RequestID
	ResponseType ResponseType
	Profile      Profile

	Params  map[string]string // Merged over the generated query parameters
	Body    map[string]string // Merged over the generated form fields, e.g. "at"
	Headers map[string]string // Merged over the default headers
}

// PreparedRequest is everything an HTTP client needs to issue a
// batchexecute POST. It is derived data; Encode never sends it.
type PreparedRequest struct {
	URL          string
	Query        map[string]string
	Form         map[string]string
	Header       map[string]string
	ResponseType ResponseType
	RPCIDs       []string // rpc ids in batch order, duplicates kept
}

// Encode validates calls and cfg and builds the request for them.
func Encode(calls []message.Call, cfg Config) (*PreparedRequest, error) {
	if err := validateCalls(calls); err != nil {
		return nil, err
	}
	endpoint, err := buildURL(cfg)
	if err != nil {
		return nil, err
	}
	reqID, err := requestID(cfg)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(calls))
	for i, c := range calls {
		ids[i] = c.RPCID
	}

	query := map[string]string{
		ParamRPCIDs:    strings.Join(distinct(ids), ","),
		ParamRequestID: strconv.Itoa(reqID + cfg.Sequence*requestIDStep),
	}
	if cfg.ResponseType != ResponseTypeDefault {
		query[ParamResponseType] = string(cfg.ResponseType)
	}
	for k, v := range cfg.Params {
		query[k] = v
	}
	required := []string{ParamRPCIDs, ParamRequestID}
	if cfg.ResponseType != ResponseTypeDefault {
		required = append(required, ParamResponseType)
	}
	if err := requireKeys("params", query, required...); err != nil {
		return nil, err
	}
	// The decoder must follow the rt actually sent.
	rt := ResponseType(query[ParamResponseType])
	if rt == ResponseTypeDefault {
		delete(query, ParamResponseType)
	}

	freq, err := encodeEnvelopes(calls)
	if err != nil {
		return nil, err
	}
	form := map[string]string{FieldRequest: freq}
	for k, v := range cfg.Body {
		form[k] = v
	}
	if err := requireKeys("body", form, FieldRequest); err != nil {
		return nil, err
	}

	header := map[string]string{"Content-Type": ContentType}
	for k, v := range cfg.Headers {
		header[k] = v
	}

	return &PreparedRequest{
		URL:          endpoint,
		Query:        query,
		Form:         form,
		Header:       header,
		ResponseType: rt,
		RPCIDs:       ids,
	}, nil
}

func validateCalls(calls []message.Call) error {
	if len(calls) == 0 {
		return fmt.Errorf("%w: batch must contain at least one call", ErrInvalidCall)
	}
	for i, c := range calls {
		if c.RPCID == "" {
			return fmt.Errorf("%w: call %d: 'rpcid' must be a non-empty string", ErrInvalidCall, i+1)
		}
		if c.Args == nil {
			return fmt.Errorf("%w: call %d (%s): 'args' must be a list", ErrInvalidCall, i+1, c.RPCID)
		}
	}
	return nil
}

func buildURL(cfg Config) (string, error) {
	if cfg.URL != "" {
		return cfg.URL, nil
	}
	if cfg.Host == "" {
		return "", fmt.Errorf("%w: 'host' is required if 'url' is omitted", ErrInvalidConfig)
	}
	if cfg.App == "" {
		return "", fmt.Errorf("%w: 'app' is required if 'url' is omitted", ErrInvalidConfig)
	}
	if cfg.User == "" {
		return "https://" + cfg.Host + "/_/" + cfg.App + "/data/batchexecute", nil
	}
	return "https://" + cfg.Host + "/u/" + cfg.User + "/_/" + cfg.App + "/data/batchexecute", nil
}

func requestID(cfg Config) (int, error) {
	if cfg.Sequence < 0 {
		return 0, fmt.Errorf("%w: 'sequence' must be >= 0, got %d", ErrInvalidConfig, cfg.Sequence)
	}
	lo, hi := cfg.Profile.Range()
	if cfg.RequestID == 0 {
		return lo + rand.IntN(hi-lo+1), nil
	}
	if cfg.RequestID < lo || cfg.RequestID > hi {
		return 0, fmt.Errorf("%w: 'reqid' must be in the %d-%d range, got %d", ErrInvalidConfig, lo, hi, cfg.RequestID)
	}
	return cfg.RequestID, nil
}

// encodeEnvelopes renders the f.req value: [[envelope, ...]].
func encodeEnvelopes(calls []message.Call) (string, error) {
	envelopes := make([]any, len(calls))
	for i, c := range calls {
		args, err := compactJSON(c.Args)
		if err != nil {
			return "", fmt.Errorf("%w: call %d (%s): args are not JSON serializable: %v", ErrInvalidCall, i+1, c.RPCID, err)
		}
		token := genericToken
		if len(calls) > 1 {
			token = strconv.Itoa(i + 1)
		}
		envelopes[i] = []any{c.RPCID, args, nil, token}
	}
	return compactJSON([]any{envelopes})
}

// compactJSON marshals v without insignificant whitespace and without
// escaping HTML characters.
func compactJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func requireKeys(what string, m map[string]string, keys ...string) error {
	for _, k := range keys {
		if m[k] == "" {
			return fmt.Errorf("%w: %s is missing key '%s'", ErrMissingKey, what, k)
		}
	}
	return nil
}

func distinct(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// QueryValues returns the query parameters as url.Values.
func (r *PreparedRequest) QueryValues() url.Values {
	return toValues(r.Query)
}

// FormValues returns the form body as url.Values.
func (r *PreparedRequest) FormValues() url.Values {
	return toValues(r.Form)
}

// Endpoint returns the URL with the encoded query string appended.
func (r *PreparedRequest) Endpoint() string {
	q := r.QueryValues().Encode()
	if q == "" {
		return r.URL
	}
	sep := "?"
	if strings.Contains(r.URL, "?") {
		sep = "&"
	}
	return r.URL + sep + q
}

// NewHTTPRequest builds the POST request for r. It does not send it.
func (r *PreparedRequest) NewHTTPRequest(ctx context.Context) (*http.Request, error) {
	body := strings.NewReader(r.FormValues().Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint(), body)
	if err != nil {
		return nil, err
	}
	for k, v := range r.Header {
		req.Header.Set(k, v)
	}
	return req, nil
}

func toValues(m map[string]string) url.Values {
	v := make(url.Values, len(m))
	for k, s := range m {
		v.Set(k, s)
	}
	return v
}
