package invoice

import (
	"context"
	"time"

	"switchgear/internal/apperr"
	"switchgear/internal/lnnode"
	"switchgear/internal/model"
	"switchgear/internal/selector"
	"switchgear/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// BackoffType names spec.md §4.3's two backoff shapes.
type BackoffType string

const (
	BackoffStop        BackoffType = "stop"
	BackoffExponential BackoffType = "exponential"
)

// BackoffConfig mirrors config.BackoffConfig without importing the
// config package, keeping invoice free of a dependency on YAML tags.
type BackoffConfig struct {
	Type                BackoffType
	InitialInterval     time.Duration
	RandomizationFactor float64
	Multiplier          float64
	MaxInterval         time.Duration
	MaxElapsedTime      time.Duration
}

func (c BackoffConfig) newBackOff() backoff.BackOff {
	if c.Type == BackoffStop {
		return &backoff.StopBackOff{}
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.InitialInterval,
		RandomizationFactor: c.RandomizationFactor,
		Multiplier:          c.Multiplier,
		MaxInterval:         c.MaxInterval,
		MaxElapsedTime:      c.MaxElapsedTime,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// Request is one invoice request to dispatch.
type Request struct {
	Partition       string
	OfferID         string
	AmountMsat      int64
	DescriptionHash [32]byte
	ExpirySecs      int
	Comment         string
	CommentAllowed  int
}

// Result is the successful outcome of Dispatch.
type Result struct {
	PaymentRequest string
}

// Dispatcher walks the selector's candidate stream for one request,
// issuing create_invoice against each candidate under a per-call
// timeout, retrying under backoff until either the stream is
// exhausted or the backoff's max-elapsed-time passes, per spec.md
// §4.3.
type Dispatcher struct {
	selector       *selector.Selector
	clientTimeout  time.Duration
	backoffCfg     BackoffConfig
}

func NewDispatcher(sel *selector.Selector, clientTimeout time.Duration, backoffCfg BackoffConfig) *Dispatcher {
	return &Dispatcher{selector: sel, clientTimeout: clientTimeout, backoffCfg: backoffCfg}
}

// Dispatch runs the retry loop described in spec.md §4.3.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	stream, ok := d.selector.Candidates(selector.Request{
		Partition:  req.Partition,
		OfferID:    req.OfferID,
		AmountMsat: req.AmountMsat,
		Comment:    req.Comment,
	})
	if !ok {
		return nil, apperr.NoBackendAvailable("no eligible backend for partition " + req.Partition)
	}

	bo := d.backoffCfg.newBackOff()
	memo := ""
	if req.CommentAllowed > 0 && len(req.Comment) <= req.CommentAllowed {
		memo = req.Comment
	}

	for {
		candidate, ok := stream.Next()
		if !ok {
			return nil, apperr.NoBackendAvailable("candidate stream exhausted for partition " + req.Partition)
		}

		result, err := d.tryCandidate(ctx, candidate, req, memo)
		candidate.Release()
		if err == nil {
			return result, nil
		}

		logger.Sink(logger.SinkLNURL).Warn("invoice attempt failed, retrying next candidate",
			zap.String("partition", req.Partition),
			zap.String("backend", candidate.Backend.Address.String()),
			zap.Error(err),
		)

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return nil, apperr.NoBackendAvailable("backoff max-elapsed-time exceeded for partition " + req.Partition)
		}

		select {
		case <-ctx.Done():
			return nil, apperr.Internal("request canceled during invoice dispatch", ctx.Err())
		case <-time.After(wait):
		}
	}
}

func (d *Dispatcher) tryCandidate(ctx context.Context, candidate selector.Candidate, req Request, memo string) (*Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.clientTimeout)
	defer cancel()

	amp := candidate.Backend.Implementation.Kind == model.ImplementationLndGrpc &&
		candidate.Backend.Implementation.Lnd != nil &&
		candidate.Backend.Implementation.Lnd.AmpInvoice

	res, err := candidate.Capability.CreateInvoice(callCtx, lnnode.CreateInvoiceRequest{
		AmountMsat:      req.AmountMsat,
		DescriptionHash: req.DescriptionHash,
		Expiry:          time.Duration(req.ExpirySecs) * time.Second,
		Memo:            memo,
		AMP:             amp,
	})
	if err != nil {
		return nil, err
	}
	return &Result{PaymentRequest: res.PaymentRequest}, nil
}
