// Package connector isolates per-institution external fetches. Fetches across
// a user's institutions are independent: one institution failing or timing out
// must not abort or cancel its siblings.
package connector

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"finsight/internal/core"
)

// Client fetches raw transactions from the bank-aggregator API for one
// credential. Implementations classify failures as *core.ConnectorError.
type Client interface {
	FetchTransactions(ctx context.Context, credential, startDate, endDate string, count int) ([]core.RawTransaction, error)
}

// Config is the pool's fetch policy, expressed as data rather than inline
// control flow.
type Config struct {
	MaxConcurrent int           // parallel institution fetches
	Timeout       time.Duration // per-attempt deadline
	MaxAttempts   int           // attempts per institution, retryable failures only
	BaseDelay     time.Duration // first retry delay, doubled per attempt
	FetchCount    int           // max transactions requested per institution
}

// DefaultConfig returns the fetch policy used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 4,
		Timeout:       15 * time.Second,
		MaxAttempts:   3,
		BaseDelay:     500 * time.Millisecond,
		FetchCount:    500,
	}
}

// InstitutionFailure records one institution's terminal fetch failure.
type InstitutionFailure struct {
	InstitutionID   string
	InstitutionName string
	Err             error
}

// Result accumulates the outcome of a fan-out across a user's institutions.
type Result struct {
	Transactions []core.RawTransaction
	Failures     []InstitutionFailure
}

// AllFailed reports whether every institution failed and nothing was fetched.
func (r Result) AllFailed() bool {
	return len(r.Transactions) == 0 && len(r.Failures) > 0
}

// AllAuthRequired reports whether every collected failure needs reconnection.
func (r Result) AllAuthRequired() bool {
	if len(r.Failures) == 0 {
		return false
	}
	for _, f := range r.Failures {
		if !core.AuthRequired(f.Err) {
			return false
		}
	}
	return true
}

// Pool runs bounded-concurrency fetches against a single aggregator client.
type Pool struct {
	client Client
	cfg    Config
}

func NewPool(client Client, cfg Config) *Pool {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Pool{client: client, cfg: cfg}
}

// FetchAll fetches the range from every institution concurrently. Results
// accumulate and failures are collected per institution; a slow or failing
// institution does not cancel in-flight siblings. Detecting the all-failed
// case is left to the caller.
func (p *Pool) FetchAll(ctx context.Context, institutions []core.ConnectedInstitution, rng core.DateRange) Result {
	var (
		mu     sync.Mutex
		result Result
	)

	g := &errgroup.Group{}
	g.SetLimit(p.cfg.MaxConcurrent)

	for _, inst := range institutions {
		g.Go(func() error {
			txs, err := p.fetchOne(ctx, inst, rng)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.ErrorContext(ctx, "Institution fetch failed",
					"institution_id", inst.InstitutionID,
					"institution_name", inst.InstitutionName,
					"error", err)
				result.Failures = append(result.Failures, InstitutionFailure{
					InstitutionID:   inst.InstitutionID,
					InstitutionName: inst.InstitutionName,
					Err:             err,
				})
				return nil // collected, not propagated
			}
			result.Transactions = append(result.Transactions, txs...)
			return nil
		})
	}

	g.Wait()
	return result
}

// fetchOne runs the retry loop for a single institution and stamps the
// institution identity onto each returned transaction.
func (p *Pool) fetchOne(ctx context.Context, inst core.ConnectedInstitution, rng core.DateRange) ([]core.RawTransaction, error) {
	var lastErr error

	for attempt := 0; attempt < p.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, p.retryDelay(attempt)); err != nil {
				return nil, classify(inst.InstitutionID, err)
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		txs, err := p.client.FetchTransactions(attemptCtx, inst.CredentialRef, rng.StartDate, rng.EndDate, p.cfg.FetchCount)
		cancel()

		if err == nil {
			for i := range txs {
				txs[i].InstitutionID = inst.InstitutionID
				txs[i].InstitutionName = inst.InstitutionName
			}
			return txs, nil
		}

		cerr := classify(inst.InstitutionID, err)
		lastErr = cerr
		if !cerr.Retryable() {
			return nil, cerr
		}
		slog.WarnContext(ctx, "Retrying institution fetch",
			"institution_id", inst.InstitutionID,
			"attempt", attempt+1,
			"max_attempts", p.cfg.MaxAttempts,
			"error", err)
	}

	return nil, lastErr
}

// retryDelay doubles the base delay per completed attempt.
func (p *Pool) retryDelay(attempt int) time.Duration {
	delay := p.cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// classify keeps ConnectorError classifications made by the client and folds
// everything else into the taxonomy: deadline and cancellation are transient,
// the rest is unknown.
func classify(institutionID string, err error) *core.ConnectorError {
	var cerr *core.ConnectorError
	if errors.As(err, &cerr) {
		if cerr.InstitutionID == "" {
			cerr.InstitutionID = institutionID
		}
		return cerr
	}

	reason := core.ReasonUnknown
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		reason = core.ReasonTransient
	}
	return &core.ConnectorError{Reason: reason, InstitutionID: institutionID, Err: err}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
