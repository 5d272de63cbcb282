package upstream

import (
	"context"

	"github.com/elee1766/servoskull/src/resilience"
)

var _ Client = (*Resilient)(nil)

// Resilient decorates a Client so every call runs under a resilience policy.
type Resilient struct {
	next   Client
	policy *resilience.Policy
}

// NewResilient wraps next. A nil cfg.Retryable defaults to IsRetryable.
func NewResilient(next Client, cfg resilience.Config) *Resilient {
	if cfg.Retryable == nil {
		cfg.Retryable = IsRetryable
	}
	return &Resilient{
		next:   next,
		policy: resilience.New(cfg),
	}
}

// State returns the circuit breaker state.
func (r *Resilient) State() string {
	return r.policy.State()
}

func (r *Resilient) ProcessMultimodal(ctx context.Context, req MultimodalRequest) (string, error) {
	var reply string
	err := r.policy.Execute(ctx, func(ctx context.Context) error {
		var err error
		reply, err = r.next.ProcessMultimodal(ctx, req)
		return err
	})
	return reply, err
}

func (r *Resilient) TranscribeAudio(ctx context.Context, audio []byte, filename string) (string, error) {
	var text string
	err := r.policy.Execute(ctx, func(ctx context.Context) error {
		var err error
		text, err = r.next.TranscribeAudio(ctx, audio, filename)
		return err
	})
	return text, err
}

func (r *Resilient) GenerateSpeech(ctx context.Context, text string) ([]byte, error) {
	var audio []byte
	err := r.policy.Execute(ctx, func(ctx context.Context) error {
		var err error
		audio, err = r.next.GenerateSpeech(ctx, text)
		return err
	})
	return audio, err
}
