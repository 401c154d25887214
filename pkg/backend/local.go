package backend

import (
	"context"
	"math"
	"time"

	"github.com/ethpandaops/tsforecast/pkg/observability"
	"github.com/ethpandaops/tsforecast/pkg/timeseries"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// Local extrapolates a least squares linear trend in process. It needs no
// network and serves offline operation and tests.
type Local struct {
	log logrus.FieldLogger
}

// NewLocal creates the in-process backend
func NewLocal(log logrus.FieldLogger) *Local {
	return &Local{log: log.WithField("component", "backend-local")}
}

// Name implements Provider
func (l *Local) Name() string {
	return TypeLocal
}

// Infer implements Provider. Confidence is the R² of the fit clamped to [0, 1].
func (l *Local) Infer(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		observability.RecordBackendCall(TypeLocal, "error", time.Since(start).Seconds())
		return nil, &Error{Kind: ErrTransport, Provider: TypeLocal, Message: "cancelled", Err: err}
	}

	if len(req.Observations) == 0 {
		observability.RecordBackendCall(TypeLocal, "error", time.Since(start).Seconds())
		return nil, &Error{Kind: ErrResponse, Provider: TypeLocal, Message: "cannot fit trend", Err: ErrNoObservations}
	}

	horizon := req.Horizon
	if horizon == 0 {
		horizon = timeseries.DefaultForecastHorizon
	}

	xs := make([]float64, len(req.Observations))
	ys := make([]float64, len(req.Observations))

	for i, o := range req.Observations {
		xs[i] = float64(i)
		ys[i] = o.Value
	}

	var alpha, beta, confidence float64

	if len(xs) == 1 {
		alpha = ys[0]
	} else {
		alpha, beta = stat.LinearRegression(xs, ys, nil, false)

		fitted := make([]float64, len(xs))
		for i, x := range xs {
			fitted[i] = alpha + beta*x
		}

		confidence = stat.RSquaredFrom(fitted, ys, nil)
		if math.IsNaN(confidence) {
			// Constant series: the fit is exact
			confidence = 1
		}

		confidence = math.Max(0, math.Min(1, confidence))
	}

	prediction := make([]float64, horizon)
	for i := range prediction {
		prediction[i] = alpha + beta*float64(len(xs)+i)
	}

	l.log.WithFields(logrus.Fields{
		"model":      req.ModelName,
		"points":     len(xs),
		"horizon":    horizon,
		"confidence": confidence,
	}).Debug("Fitted local trend")

	observability.RecordBackendCall(TypeLocal, "success", time.Since(start).Seconds())

	return &Response{
		Prediction: prediction,
		Confidence: confidence,
		Provider:   TypeLocal,
	}, nil
}

// InferStream implements Provider. One chunk is sent per predicted step.
func (l *Local) InferStream(ctx context.Context, req Request) (<-chan Chunk, error) {
	resp, err := l.Infer(ctx, req)
	if err != nil {
		return nil, err
	}

	ch := make(chan Chunk, len(resp.Prediction)+1)

	for _, v := range resp.Prediction {
		ch <- Chunk{Response: &Response{
			Prediction: []float64{v},
			Confidence: resp.Confidence,
			Provider:   TypeLocal,
		}}
	}

	ch <- Chunk{Response: resp, Done: true}
	close(ch)

	return ch, nil
}

// StartBatchInference implements Provider
func (l *Local) StartBatchInference(ctx context.Context, reqs []Request) (*Batch, error) {
	return batchConcurrent(ctx, l, reqs)
}
