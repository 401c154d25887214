package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethpandaops/tsforecast/pkg/observability"
	"github.com/ethpandaops/tsforecast/pkg/timeseries"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
)

type mindsDBRequest struct {
	Data         []map[string]interface{} `json:"data"`
	TargetColumn string                   `json:"target_column"`
}

type mindsDBResponse struct {
	Prediction []float64 `json:"prediction"`
	Confidence float64   `json:"confidence"`
}

// MindsDB calls a MindsDB style prediction endpoint over HTTP
type MindsDB struct {
	log    logrus.FieldLogger
	url    string
	client *http.Client
}

// NewMindsDB creates the HTTP backend. A nil client gets one bounded by cfg.Timeout.
func NewMindsDB(log logrus.FieldLogger, cfg Config, client *http.Client) *MindsDB {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &MindsDB{
		log:    log.WithField("component", "backend-mindsdb"),
		url:    strings.TrimRight(cfg.URL, "/"),
		client: client,
	}
}

// Name implements Provider
func (m *MindsDB) Name() string {
	return TypeMindsDB
}

// Infer implements Provider
func (m *MindsDB) Infer(ctx context.Context, req Request) (resp *Response, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}

		observability.RecordBackendCall(TypeMindsDB, status, time.Since(start).Seconds())
	}()

	target := req.TargetColumn
	if target == "" {
		target = timeseries.DefaultTargetColumn
	}

	body, err := json.Marshal(mindsDBRequest{
		Data:         rows(req.Observations, target),
		TargetColumn: target,
	})
	if err != nil {
		return nil, &Error{Kind: ErrSerialization, Provider: TypeMindsDB, Message: "failed to encode request", Err: err}
	}

	endpoint := fmt.Sprintf("%s/api/models/%s/predict", m.url, url.PathEscape(req.ModelName))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: ErrTransport, Provider: TypeMindsDB, Message: "failed to build request", RawRequest: string(body), Err: err}
	}

	httpReq.Header.Set("Content-Type", "application/json")

	m.log.WithFields(logrus.Fields{
		"model":  req.ModelName,
		"points": len(req.Observations),
	}).Debug("Calling forecast backend")

	httpResp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: ErrTransport, Provider: TypeMindsDB, Message: "request failed", RawRequest: string(body), Err: err}
	}
	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil {
			m.log.WithError(closeErr).Debug("Failed to close response body")
		}
	}()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &Error{
			Kind:       ErrTransport,
			Provider:   TypeMindsDB,
			Message:    "failed to read response",
			RawRequest: string(body),
			StatusCode: httpResp.StatusCode,
			Err:        err,
		}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, &Error{
			Kind:        ErrResponse,
			Provider:    TypeMindsDB,
			Message:     "unexpected status",
			RawRequest:  string(body),
			RawResponse: string(raw),
			StatusCode:  httpResp.StatusCode,
		}
	}

	var decoded mindsDBResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &Error{
			Kind:        ErrResponse,
			Provider:    TypeMindsDB,
			Message:     "failed to parse response",
			RawRequest:  string(body),
			RawResponse: string(raw),
			StatusCode:  httpResp.StatusCode,
			Err:         err,
		}
	}

	return &Response{
		Prediction:  decoded.Prediction,
		Confidence:  decoded.Confidence,
		Provider:    TypeMindsDB,
		RawResponse: string(raw),
	}, nil
}

// InferStream implements Provider. The endpoint has no streaming mode so the
// whole forecast arrives as one chunk.
func (m *MindsDB) InferStream(ctx context.Context, req Request) (<-chan Chunk, error) {
	return streamOnce(ctx, m, req)
}

// StartBatchInference implements Provider
func (m *MindsDB) StartBatchInference(ctx context.Context, reqs []Request) (*Batch, error) {
	return batchConcurrent(ctx, m, reqs)
}

// rows flattens observations into the row shape the endpoint expects. The
// timestamp and target keys win over features of the same name.
func rows(observations []timeseries.Observation, target string) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(observations))

	for _, o := range observations {
		row := make(map[string]interface{}, len(o.AdditionalFeatures)+2)
		for k, v := range o.AdditionalFeatures {
			row[k] = v
		}

		row["timestamp"] = o.Timestamp.UTC().Format(time.RFC3339Nano)
		row[target] = o.Value
		out = append(out, row)
	}

	return out
}
