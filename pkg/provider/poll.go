package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultPollTimeout  = 30 * time.Minute
)

// PollOption configures polling behavior.
type PollOption func(*pollConfig)

type pollConfig struct {
	interval   time.Duration
	timeout    time.Duration
	onProgress func(JobState)
}

func defaultPollConfig() pollConfig {
	return pollConfig{
		interval: defaultPollInterval,
		timeout:  defaultPollTimeout,
	}
}

// WithPollInterval overrides the fixed poll interval.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.interval = d
	}
}

// WithPollTimeout overrides the default timeout (applied only if the parent
// context has no deadline).
func WithPollTimeout(d time.Duration) PollOption {
	return func(c *pollConfig) {
		c.timeout = d
	}
}

// WithProgress registers a callback invoked after each successful poll.
func WithProgress(fn func(JobState)) PollOption {
	return func(c *pollConfig) {
		c.onProgress = fn
	}
}

// WaitForCompletion polls the job's status on a fixed interval until it is
// ready, fails, or the timeout expires. Transient poll errors are swallowed
// and polling continues; only an explicit failed/error status or the
// timeout is fatal. Unrecognized statuses keep polling.
func WaitForCompletion(ctx context.Context, client Client, jobID string, opts ...PollOption) error {
	cfg := defaultPollConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	for {
		state, err := client.PollStatus(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return eris.Wrap(ctx.Err(), fmt.Sprintf("provider: poll job %s timed out", jobID))
			}
			zap.L().Debug("provider: poll error, retrying",
				zap.String("job_id", jobID),
				zap.Error(err),
			)
		} else {
			switch state.Status {
			case JobStatusReady:
				return nil
			case JobStatusFailed, JobStatusError:
				return eris.Errorf("provider: job %s failed: %s", jobID, state.Message)
			}
			if cfg.onProgress != nil {
				cfg.onProgress(*state)
			}
		}

		select {
		case <-ctx.Done():
			return eris.Wrap(ctx.Err(), fmt.Sprintf("provider: poll job %s timed out", jobID))
		case <-time.After(cfg.interval):
		}
	}
}
