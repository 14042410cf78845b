package embedder

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/pietrondo/tutor-rag/internal/retrieval"
)

// Limited wraps a retrieval.Encoder with a client-side token bucket so bulk
// re-indexing does not overrun an upstream API's request quota. One token is
// consumed per Encode call regardless of batch size — batching stays the
// cheapest way to encode.
type Limited struct {
	inner   retrieval.Encoder
	limiter *rate.Limiter
}

// NewLimited wraps enc with a token bucket allowing rps requests per second
// with the given burst.
func NewLimited(enc retrieval.Encoder, rps float64, burst int) *Limited {
	return &Limited{
		inner:   enc,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Encode blocks until the limiter grants a token, then delegates to the
// wrapped encoder. A cancelled context aborts the wait.
func (l *Limited) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedder: rate limit wait: %w", err)
	}
	return l.inner.Encode(ctx, texts)
}
