package allocatecode

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-workers/internal/common/config"
	"clinic-workers/internal/common/errors"
	"clinic-workers/internal/common/logger"
	"clinic-workers/internal/sequence"
)

type brokenStore struct{ *sequence.MemoryStore }

func (brokenStore) Increment(context.Context, string) (int64, error) {
	return 0, stderrors.New("connection reset by peer")
}

func createTestHandler(t *testing.T, store sequence.Store) *Handler {
	alloc := sequence.NewAllocator(store, nil, logger.NewTestLogger(t))
	return NewHandler(LoadConfig(config.WorkerConfig{}), alloc, logger.NewTestLogger(t))
}

func TestHandler_Execute_Success(t *testing.T) {
	tests := []struct {
		name  string
		input *Input
		want  []Output
	}{
		{
			name:  "patient codes are sequential",
			input: &Input{Kind: "patient"},
			want: []Output{
				{Code: "P-0001", Value: 1, Scope: "patient"},
				{Code: "P-0002", Value: 2, Scope: "patient"},
			},
		},
		{
			name:  "treatment plans count per patient",
			input: &Input{Kind: "tplan", Owner: "P-0004"},
			want: []Output{
				{Code: "TP-001", Value: 1, Scope: "tplan:P-0004"},
				{Code: "TP-002", Value: 2, Scope: "tplan:P-0004"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := createTestHandler(t, sequence.NewMemoryStore())
			for _, want := range tt.want {
				out, err := h.Execute(context.Background(), tt.input)
				require.NoError(t, err)
				assert.Equal(t, want, *out)
			}
		})
	}
}

func TestHandler_Execute_Concurrent(t *testing.T) {
	h := createTestHandler(t, sequence.NewMemoryStore())

	const n = 25
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = make(map[string]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := h.Execute(context.Background(), &Input{Kind: "inquiry"})
			if assert.NoError(t, err) {
				mu.Lock()
				codes[out.Code] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, codes, n)
	assert.True(t, codes["INQ-0001"])
	assert.True(t, codes["INQ-0025"])
}

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name  string
		store sequence.Store
		input *Input
		code  errors.ErrorCode
	}{
		{"unknown kind", sequence.NewMemoryStore(), &Input{Kind: "invoice"}, errors.ErrCodeUnknownCodeKind},
		{"owned kind without owner", sequence.NewMemoryStore(), &Input{Kind: "tplan"}, errors.ErrCodeValidationFailed},
		{"store failure", brokenStore{sequence.NewMemoryStore()}, &Input{Kind: "patient"}, errors.ErrCodeSequenceAllocationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := createTestHandler(t, tt.store)
			out, err := h.Execute(context.Background(), tt.input)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
		})
	}
}
