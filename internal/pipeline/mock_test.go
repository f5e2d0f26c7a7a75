package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/zakupki-realty/internal/gis"
	"github.com/sells-group/zakupki-realty/internal/model"
)

// --- Source Mock ---

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Search(ctx context.Context, page int) ([]model.Candidate, error) {
	args := m.Called(ctx, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Candidate), args.Error(1)
}

func (m *mockSource) FetchDocuments(ctx context.Context, regNumber string) (string, error) {
	args := m.Called(ctx, regNumber)
	return args.String(0), args.Error(1)
}

func (m *mockSource) Cleanup(regNumber string) error {
	args := m.Called(regNumber)
	return args.Error(0)
}

// --- Extractor Mock ---

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, rec *model.Record) (*model.ExtractionResult, error) {
	args := m.Called(ctx, rec.RegNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ExtractionResult), args.Error(1)
}

// --- URL Builder Mock ---

type mockURLBuilder struct {
	mock.Mock
}

func (m *mockURLBuilder) BuildURL(ctx context.Context, p gis.SearchParams) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

// --- Listing Collector Mock ---

type mockCollector struct {
	mock.Mock
}

func (m *mockCollector) Collect(ctx context.Context, queryURL string, topN int, details bool) model.CollectResult {
	args := m.Called(ctx, queryURL, topN, details)
	return args.Get(0).(model.CollectResult)
}
