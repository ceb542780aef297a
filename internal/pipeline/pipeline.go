// Package pipeline wires normalization, chunked inference, aggregation and
// detection into the request-scoped classification flow.
package pipeline

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/invisible-tech/hybrid-ids/internal/aggregate"
	"github.com/invisible-tech/hybrid-ids/internal/detection"
	"github.com/invisible-tech/hybrid-ids/internal/inference"
	"github.com/invisible-tech/hybrid-ids/internal/model"
	"github.com/invisible-tech/hybrid-ids/internal/normalize"
	"github.com/invisible-tech/hybrid-ids/internal/types"
	"github.com/invisible-tech/hybrid-ids/internal/version"
)

// AlertSink receives urgent alerts for forwarding to an external system.
type AlertSink interface {
	SendAlert(ctx context.Context, alert *types.Alert) error
}

// Config holds the pipeline tuning knobs.
type Config struct {
	BatchSize   int
	Workers     int
	TopN        int
	AlertBuffer int
}

// Pipeline classifies batches against one loaded model. It holds no
// per-request state and is safe for concurrent use.
type Pipeline struct {
	handle     *model.Handle
	normalizer *normalize.Normalizer
	runner     *inference.Runner
	labels     []string
	topN       int
	engine     *detection.Engine
	log        *logrus.Logger

	sink    AlertSink
	alertCh chan *types.Alert
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithAlertSink forwards urgent alerts to sink once Start is running.
func WithAlertSink(sink AlertSink) Option {
	return func(p *Pipeline) { p.sink = sink }
}

// New creates a Pipeline over the loaded model handle.
func New(h *model.Handle, cfg Config, log *logrus.Logger, opts ...Option) *Pipeline {
	if cfg.TopN <= 0 {
		cfg.TopN = aggregate.DefaultTopN
	}
	if cfg.AlertBuffer <= 0 {
		cfg.AlertBuffer = 1000
	}
	p := &Pipeline{
		handle:     h,
		normalizer: normalize.New(h.NumFeatures()),
		labels:     h.Labels(),
		topN:       cfg.TopN,
		engine:     detection.NewEngine(),
		log:        log,
		alertCh:    make(chan *types.Alert, cfg.AlertBuffer),
	}
	p.runner = inference.NewRunner(h.Scaler(), h.Classifier(),
		inference.WithBatchSize(cfg.BatchSize),
		inference.WithWorkers(cfg.Workers),
		inference.WithChunkObserver(func(int) { chunksTotal.Inc() }),
	)
	for _, opt := range opts {
		opt(p)
	}
	log.WithField("rules", len(p.engine.Rules())).Debug("Detection engine ready")
	return p
}

// Start forwards queued alerts to the sink until ctx is done. It is a no-op
// without a sink.
func (p *Pipeline) Start(ctx context.Context) {
	if p.sink == nil {
		return
	}
	go p.processAlerts(ctx)
}

// ClassifyFile normalizes an uploaded tabular file and summarizes it.
func (p *Pipeline) ClassifyFile(ctx context.Context, name string, r io.Reader) (*types.BatchSummary, error) {
	start := time.Now()
	matrix, err := p.normalizer.FromFile(name, r)
	if err != nil {
		p.record(outcomeInvalid, start)
		return nil, err
	}
	return p.classify(ctx, matrix, start, logrus.Fields{"source": "file", "filename": name})
}

// ClassifyRows normalizes inline rows and summarizes them.
func (p *Pipeline) ClassifyRows(ctx context.Context, rows [][]float64) (*types.BatchSummary, error) {
	start := time.Now()
	matrix, err := p.normalizer.FromRows(rows)
	if err != nil {
		p.record(outcomeInvalid, start)
		return nil, err
	}
	return p.classify(ctx, matrix, start, logrus.Fields{"source": "rows"})
}

// Predict classifies a single feature vector.
func (p *Pipeline) Predict(ctx context.Context, features []float64) (*types.Prediction, error) {
	start := time.Now()
	matrix, err := p.normalizer.FromRows([][]float64{features})
	if err != nil {
		p.record(outcomeInvalid, start)
		return nil, err
	}
	probs, err := p.runner.Infer(ctx, matrix)
	if err != nil {
		p.record(failureOutcome(err), start)
		return nil, err
	}
	pred, err := aggregate.Predict(probs[0], p.labels)
	if err != nil {
		p.record(outcomeFailed, start)
		return nil, err
	}
	samplesClassified.WithLabelValues(pred.Prediction).Inc()
	p.record(outcomeOK, start)
	return pred, nil
}

// Info describes the loaded model and pipeline settings.
func (p *Pipeline) Info() types.ModelInfo {
	return types.ModelInfo{
		Version:     version.Version,
		Labels:      append([]string(nil), p.labels...),
		NumFeatures: p.handle.NumFeatures(),
		NumClasses:  len(p.labels),
		BatchSize:   p.runner.BatchSize(),
		TopN:        p.topN,
		Fingerprint: p.handle.Fingerprint(),
		Attacks:     detection.Catalog(),
	}
}

func (p *Pipeline) classify(ctx context.Context, matrix [][]float64, start time.Time, fields logrus.Fields) (*types.BatchSummary, error) {
	batchID := uuid.NewString()
	log := p.log.WithFields(fields).WithField("batch_id", batchID)

	if len(matrix) == 0 {
		p.record(outcomeEmpty, start)
		return nil, aggregate.ErrEmptyInput
	}

	probs, err := p.runner.Infer(ctx, matrix)
	if err != nil {
		p.record(failureOutcome(err), start)
		log.WithError(err).WithField("rows", len(matrix)).Error("Batch inference failed")
		return nil, err
	}

	summary, err := aggregate.Summarize(probs, p.labels, p.topN)
	if err != nil {
		p.record(outcomeFailed, start)
		log.WithError(err).Error("Batch aggregation failed")
		return nil, err
	}
	p.countLabels(probs)
	p.record(outcomeOK, start)

	log.WithFields(logrus.Fields{
		"total_samples": summary.TotalSamples,
		"normal_count":  summary.NormalCount,
		"attack_count":  summary.AttackCount,
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Info("Batch classified")

	p.detect(batchID, summary)
	return summary, nil
}

func (p *Pipeline) countLabels(probs [][]float64) {
	counts := make(map[string]int)
	for _, v := range probs {
		if i := aggregate.Argmax(v); i >= 0 && i < len(p.labels) {
			counts[p.labels[i]]++
		}
	}
	for label, n := range counts {
		samplesClassified.WithLabelValues(label).Add(float64(n))
	}
}

// detect evaluates the summary and queues urgent alerts. It never affects
// the response.
func (p *Pipeline) detect(batchID string, summary *types.BatchSummary) {
	for _, alert := range p.engine.Evaluate(batchID, summary) {
		alertsGenerated.WithLabelValues(alert.RuleID, alert.Severity).Inc()
		p.log.WithFields(logrus.Fields{
			"alert_id": alert.ID,
			"rule":     alert.RuleID,
			"severity": alert.Severity,
			"batch_id": batchID,
			"attacks":  alert.Attacks,
		}).Warn("Security alert generated")

		if p.sink == nil || !alert.IsUrgent() {
			continue
		}
		select {
		case p.alertCh <- alert:
		default:
			p.log.WithField("alert_id", alert.ID).Warn("Alert queue full, dropping alert")
		}
	}
}

func (p *Pipeline) processAlerts(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-p.alertCh:
			if err := p.sink.SendAlert(ctx, alert); err != nil {
				p.log.WithError(err).WithField("alert_id", alert.ID).Error("Failed to forward alert")
			}
		}
	}
}

func (p *Pipeline) record(outcome string, start time.Time) {
	batchesTotal.WithLabelValues(outcome).Inc()
	batchDuration.Observe(time.Since(start).Seconds())
}

func failureOutcome(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return outcomeCanceled
	}
	return outcomeFailed
}
