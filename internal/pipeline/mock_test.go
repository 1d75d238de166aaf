package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/menu-ingredients/internal/extract"
	"github.com/sells-group/menu-ingredients/internal/model"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) LoadMenuBatch(ctx context.Context, limit int) ([]model.SourceItem, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SourceItem), args.Error(1)
}

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) ExtractChunks(ctx context.Context, chunks []string) (*extract.Outcome, error) {
	args := m.Called(ctx, chunks)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*extract.Outcome), args.Error(1)
}

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) PersistRun(ctx context.Context, results []model.ExtractionResult, meta model.RunMeta) (int64, error) {
	args := m.Called(ctx, results, meta)
	return args.Get(0).(int64), args.Error(1)
}
