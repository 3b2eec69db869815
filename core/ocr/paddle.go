package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"math"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ankit-chaubey/privacy-surgery/core"
	"github.com/ankit-chaubey/privacy-surgery/core/literal"
)

// DefaultEndpoint is where a local PaddleOCR serving instance listens.
const DefaultEndpoint = "http://127.0.0.1:9998/ocr/prediction"

// PaddleClient talks to a PaddleOCR pipeline served over HTTP.
type PaddleClient struct {
	endpoint   string
	httpClient *http.Client
	logger     zerolog.Logger
}

// PaddleOption configures a PaddleClient.
type PaddleOption func(*PaddleClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) PaddleOption {
	return func(p *PaddleClient) { p.httpClient = c }
}

// WithTimeout sets the per-request timeout. Zero disables it.
func WithTimeout(d time.Duration) PaddleOption {
	return func(p *PaddleClient) { p.httpClient.Timeout = d }
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) PaddleOption {
	return func(p *PaddleClient) { p.logger = l }
}

// NewPaddleClient creates a client for endpoint, or DefaultEndpoint when
// endpoint is empty.
func NewPaddleClient(endpoint string, opts ...PaddleOption) *PaddleClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	p := &PaddleClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type paddleRequest struct {
	Key   []string `json:"key"`
	Value []string `json:"value"`
}

type paddleResponse struct {
	ErrNo  int               `json:"err_no"`
	ErrMsg string            `json:"err_msg"`
	Key    []string          `json:"key"`
	Value  []json.RawMessage `json:"value"`
}

// Recognize sends the image at path to the service. Transport failures and
// non-2xx replies are network errors; a non-zero err_no or an unreadable
// payload is a service error. There is no retry.
func (p *PaddleClient) Recognize(ctx context.Context, path string) ([]Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(paddleRequest{
		Key:   []string{"image"},
		Value: []string{base64.StdEncoding.EncodeToString(data)},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, core.NewNetworkError(p.endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, core.NewNetworkError(p.endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewNetworkError(p.endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, core.NewNetworkError(p.endpoint,
			fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(raw)))
	}
	p.logger.Debug().
		Str("path", path).
		Int64("duration(ms)", time.Since(start).Milliseconds()).
		Msg("ocr response")

	var result paddleResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, serviceError(path, -1, "undecodable response", err)
	}
	if result.ErrNo != 0 {
		return nil, core.NewServiceError(path, result.ErrNo, result.ErrMsg)
	}
	if len(result.Value) == 0 {
		return nil, nil
	}
	regions, err := decodeRegions(result.Value[0])
	if err != nil {
		return nil, serviceError(path, 0, "undecodable payload", err)
	}
	return regions, nil
}

func serviceError(path string, status int, msg string, cause error) error {
	e := core.NewServiceError(path, status, msg)
	e.Cause = cause
	return e
}

// decodeRegions reads value[0]: normally a string holding a literal list
// of [(text, confidence), [[x, y], ...]] items, sometimes the list itself.
func decodeRegions(raw json.RawMessage) ([]Region, error) {
	src := string(raw)
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		src = s
	}
	lit, err := literal.Parse(src)
	if err != nil {
		return nil, err
	}
	items, ok := lit.([]any)
	if !ok {
		return nil, fmt.Errorf("payload is %T, not a list", lit)
	}

	regions := make([]Region, 0, len(items))
	for i, item := range items {
		r, err := decodeRegion(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		regions = append(regions, r)
	}
	return regions, nil
}

func decodeRegion(item any) (Region, error) {
	pair, ok := item.([]any)
	if !ok || len(pair) != 2 {
		return Region{}, fmt.Errorf("want [(text, confidence), points]")
	}
	rec, ok := pair[0].([]any)
	if !ok || len(rec) != 2 {
		return Region{}, fmt.Errorf("want (text, confidence)")
	}
	text, ok := rec[0].(string)
	if !ok {
		return Region{}, fmt.Errorf("text is %T", rec[0])
	}
	conf, ok := literal.Float(rec[1])
	if !ok {
		return Region{}, fmt.Errorf("confidence is %T", rec[1])
	}

	pts, ok := pair[1].([]any)
	if !ok || len(pts) < 3 {
		return Region{}, fmt.Errorf("polygon needs at least 3 points")
	}
	r := Region{Text: text, Confidence: math.Max(0, math.Min(1, conf))}
	for _, pt := range pts {
		xy, ok := pt.([]any)
		if !ok || len(xy) != 2 {
			return Region{}, fmt.Errorf("point is not [x, y]")
		}
		x, okx := literal.Float(xy[0])
		y, oky := literal.Float(xy[1])
		if !okx || !oky {
			return Region{}, fmt.Errorf("point is not numeric")
		}
		r.Polygon = append(r.Polygon, image.Pt(int(math.Round(x)), int(math.Round(y))))
	}
	return r, nil
}
