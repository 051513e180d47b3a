package modelclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pasteldev/agentic-runtime/internal/infra"
	"github.com/pasteldev/agentic-runtime/internal/modelclient/providers"
)

// ErrAllProvidersFailed is returned when every client in a FailoverClient's
// chain has been exhausted for a single request.
var ErrAllProvidersFailed = errors.New("modelclient: all providers failed")

// FailoverClient wraps an ordered list of ModelClients and advances to the
// next one whenever the current client's error is classified as fatal
// (ShouldFailover), short-circuiting through a per-provider CircuitBreaker.
type FailoverClient struct {
	clients  []ModelClient
	breakers *infra.CircuitBreakerRegistry
	logger   *slog.Logger
}

// NewFailoverClient builds a FailoverClient over clients, tried in order.
func NewFailoverClient(clients []ModelClient, logger *slog.Logger) *FailoverClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &FailoverClient{
		clients:  clients,
		breakers: infra.NewCircuitBreakerRegistry(infra.CircuitBreakerConfig{}),
		logger:   logger,
	}
}

// Name reports the first client's name; FailoverClient is otherwise
// transparent to callers about which client actually served a request.
func (f *FailoverClient) Name() string {
	if len(f.clients) == 0 {
		return "failover"
	}
	return f.clients[0].Name()
}

// Complete tries each client in order, advancing past a client whenever its
// error is fatal per providers.ShouldFailover, or its circuit is open.
func (f *FailoverClient) Complete(ctx context.Context, req ChatRequest) (<-chan *ResponseChunk, error) {
	var lastErr error
	for _, client := range f.clients {
		cb := f.breakers.Get(client.Name())
		chunks, err := infra.ExecuteWithResult(cb, ctx, func(ctx context.Context) (<-chan *ResponseChunk, error) {
			return client.Complete(ctx, req)
		})
		if err == nil {
			return drainFatalOnFirstChunk(ctx, chunks, f.logger, client.Name()), nil
		}

		lastErr = err
		f.logger.Warn("model client failed, considering failover",
			"provider", client.Name(), "error", err)
		if errors.Is(err, infra.ErrCircuitOpen) || providers.ShouldFailover(err) {
			continue
		}
		return nil, err
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllProvidersFailed, lastErr)
	}
	return nil, ErrAllProvidersFailed
}

// drainFatalOnFirstChunk passes chunks through unmodified; it exists as the
// seam where a future provider could be asked to retry mid-stream on a
// fatal first-chunk error without changing FailoverClient's public shape.
func drainFatalOnFirstChunk(ctx context.Context, in <-chan *ResponseChunk, logger *slog.Logger, provider string) <-chan *ResponseChunk {
	out := make(chan *ResponseChunk)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-in:
				if !ok {
					return
				}
				if chunk.Error != nil {
					logger.Warn("stream error from provider", "provider", provider, "error", chunk.Error)
				}
				out <- chunk
			}
		}
	}()
	return out
}
