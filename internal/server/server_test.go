package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/zakupki-realty/internal/gis"
	"github.com/sells-group/zakupki-realty/internal/model"
	"github.com/sells-group/zakupki-realty/internal/pipeline"
	"github.com/sells-group/zakupki-realty/internal/store"
)

type mockSource struct{ mock.Mock }

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
	return m.Called(regNumber).Error(0)
}

type mockExtractor struct{ mock.Mock }

func (m *mockExtractor) Extract(ctx context.Context, rec *model.Record) (*model.ExtractionResult, error) {
	args := m.Called(ctx, rec.RegNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ExtractionResult), args.Error(1)
}

type mockURLBuilder struct{ mock.Mock }

func (m *mockURLBuilder) BuildURL(ctx context.Context, p gis.SearchParams) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

type mockCollector struct{ mock.Mock }

func (m *mockCollector) Collect(ctx context.Context, queryURL string, topN int, details bool) model.CollectResult {
	return m.Called(ctx, queryURL, topN, details).Get(0).(model.CollectResult)
}

type testEnv struct {
	handler   http.Handler
	st        *store.SQLiteStore
	source    *mockSource
	extractor *mockExtractor
	collector *mockCollector
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "server.db"), store.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	env := &testEnv{
		st:        st,
		source:    &mockSource{},
		extractor: &mockExtractor{},
		collector: &mockCollector{},
	}
	p := pipeline.New(st, env.source, env.extractor, &mockURLBuilder{}, env.collector, pipeline.Options{MaxPages: 2})
	env.handler = New(p, Config{DefaultUserID: 1, ListingsTopN: 5}).Router()
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) seed(t *testing.T, reg string, status model.Status) {
	t.Helper()
	ctx := context.Background()
	price := 2500000.0
	require.NoError(t, e.st.SaveRecord(ctx, &model.Record{
		RegNumber:    reg,
		Description:  "Квартира для детей-сирот",
		InitialPrice: &price,
		CombinedText: "Квартира в г. Пермь",
	}))
	if status != model.StatusRaw {
		_, err := e.st.AdvanceStatus(ctx, reg, status, nil)
		require.NoError(t, err)
	}
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "ok", decode[map[string]string](t, rr)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestStageView(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "A", model.StatusRaw)

	rr := env.do(t, http.MethodGet, "/api/stage/1?limit=10", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[struct {
		Stage   int              `json:"stage"`
		Records []map[string]any `json:"records"`
		Total   int              `json:"total"`
	}](t, rr)
	assert.Equal(t, 1, body.Stage)
	assert.Equal(t, 1, body.Total)
	assert.Equal(t, "A", body.Records[0]["reg_number"])

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/stage/0", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/stage/x", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/stage/1?limit=abc", nil).Code)
}

func TestSaveDecision(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "A", model.StatusRaw)

	rr := env.do(t, http.MethodPost, "/api/decisions", map[string]any{
		"reg_number": "A", "stage": 1, "decision": "approved",
	}, UserHeader, "1")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "approved", decode[map[string]string](t, rr)["decision"])

	d, err := env.st.CurrentDecision(context.Background(), 1, "A", 1)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, model.DecisionApproved, d.Decision)
}

func TestSaveDecision_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"unknown decision", map[string]any{"reg_number": "A", "stage": 1, "decision": "maybe"}},
		{"missing reg number", map[string]any{"stage": 1, "decision": "approved"}},
		{"zero stage", map[string]any{"reg_number": "A", "stage": 0, "decision": "approved"}},
		{"bad user", map[string]any{"user_id": -3, "reg_number": "A", "stage": 1, "decision": "approved"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/decisions", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestSaveDecision_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.st.Close())

	rr := env.do(t, http.MethodPost, "/api/decisions", map[string]any{
		"reg_number": "A", "stage": 1, "decision": "approved",
	})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestOverrides_SaveGetClear(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "A", model.StatusAIReady)

	rr := env.do(t, http.MethodPost, "/api/overrides", map[string]any{
		"user_id": 1, "reg_number": "A", "field_name": "city", "value": " Казань ",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rr)["status"])

	rr = env.do(t, http.MethodGet, "/api/overrides/A?user_id=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, map[string]string{"city": "Казань"}, decode[map[string]string](t, rr))

	env.do(t, http.MethodPost, "/api/overrides", map[string]any{
		"reg_number": "A", "field_name": "city", "value": "",
	})
	rr = env.do(t, http.MethodGet, "/api/overrides/A", nil)
	assert.Empty(t, decode[map[string]string](t, rr))
}

func TestOverrides_UnknownField(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/overrides", map[string]any{
		"reg_number": "A", "field_name": "status", "value": "listings_fresh",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRecordListings(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "A", model.StatusListingsFresh)
	price := 2400000.0
	require.NoError(t, env.st.ReplaceListings(context.Background(), "A", []model.Listing{
		{Rank: 1, PriceRub: &price, ExternalSource: model.SourceAvito, FetchedAt: time.Now().UTC()},
	}))

	rr := env.do(t, http.MethodGet, "/api/records/A/listings", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[struct {
		Listings []model.Listing `json:"listings"`
		Total    int             `json:"total"`
	}](t, rr)
	assert.Equal(t, 1, body.Total)
	assert.Equal(t, model.SourceAvito, body.Listings[0].ExternalSource)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/records/missing/listings", nil).Code)
}

func TestUserSelections(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "A", model.StatusURLReady)
	env.seed(t, "B", model.StatusURLReady)
	env.seed(t, "C", model.StatusAIReady)

	rr := env.do(t, http.MethodPost, "/api/user/select", map[string]any{"reg_numbers": []string{"A", "B", "A"}})
	require.Equal(t, http.StatusOK, rr.Code)
	sel := decode[map[string]any](t, rr)
	assert.EqualValues(t, 2, sel["added"])
	assert.EqualValues(t, 2, sel["total_selected"])

	rr = env.do(t, http.MethodPost, "/api/user/unselect", map[string]any{"reg_numbers": []string{"B", "Z"}})
	unsel := decode[map[string]any](t, rr)
	assert.EqualValues(t, 1, unsel["removed"])
	assert.EqualValues(t, 1, unsel["total_selected"])

	rr = env.do(t, http.MethodGet, "/api/user/available", nil)
	avail := decode[struct {
		Records []summary `json:"records"`
		Total   int       `json:"total"`
	}](t, rr)
	require.Equal(t, 2, avail.Total)
	for _, s := range avail.Records {
		assert.Equal(t, s.RegNumber == "A", s.IsSelected, s.RegNumber)
	}

	rr = env.do(t, http.MethodGet, "/api/user/selections", nil)
	mine := decode[struct {
		Records []summary `json:"records"`
	}](t, rr)
	require.Len(t, mine.Records, 1)
	assert.Equal(t, "A", mine.Records[0].RegNumber)
}

func TestRunListings_NoSelectionsIsWarning(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/user/run_listings", map[string]any{"top_n": 3})

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[batchResponse](t, rr)
	assert.Equal(t, "warning", resp.Status)
	env.collector.AssertNotCalled(t, "Collect", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIngest_SourceDownIsError(t *testing.T) {
	env := newTestEnv(t)
	env.source.On("Search", mock.Anything, 1).Return(nil, errors.New("portal unreachable"))

	rr := env.do(t, http.MethodPost, "/api/actions/ingest", map[string]any{"limit": 2})

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[batchResponse](t, rr)
	assert.Equal(t, "error", resp.Status)
	assert.NotEmpty(t, resp.RunID)
	assert.NotEmpty(t, resp.Errors)
}

func TestAddToStage2_RunsExtraction(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "A", model.StatusRaw)
	city := "Пермь"
	env.extractor.On("Extract", mock.Anything, "A").Return(&model.ExtractionResult{City: &city}, nil).Once()

	rr := env.do(t, http.MethodPost, "/api/actions/add_to_stage2", map[string]any{"reg_numbers": []string{"A"}}, UserHeader, "1")

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[map[string]any](t, rr)
	assert.Equal(t, "ok", resp["status"])
	assert.EqualValues(t, 1, resp["count"])

	rec, err := env.st.GetRecord(context.Background(), "A")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAIReady, rec.Status)
	env.extractor.AssertExpectations(t)
}

func TestExtract_ClientDisconnectDoesNotAbortRun(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "A", model.StatusRaw)
	env.seed(t, "B", model.StatusRaw)

	reqCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The client goes away while the first record is being extracted.
	env.extractor.On("Extract", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(&model.ExtractionResult{}, nil).Twice()

	req := httptest.NewRequest(http.MethodPost, "/api/actions/extract", bytes.NewBufferString(`{}`)).WithContext(reqCtx)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[batchResponse](t, rr)
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, resp.Errors)

	n, err := env.st.CountExtractions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	for _, reg := range []string{"A", "B"} {
		rec, err := env.st.GetRecord(context.Background(), reg)
		require.NoError(t, err)
		assert.Equal(t, model.StatusAIReady, rec.Status)
	}
	env.extractor.AssertExpectations(t)
}

func TestAddToStage2_RequiresIDs(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/actions/add_to_stage2", map[string]any{})

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAdminStatusAndRuns(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "A", model.StatusRaw)
	env.seed(t, "B", model.StatusURLReady)
	env.extractor.On("Extract", mock.Anything, "A").Return(&model.ExtractionResult{}, nil).Once()

	rr := env.do(t, http.MethodPost, "/api/admin/batch_extract", map[string]any{"limit": 0})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/admin/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	status := decode[struct {
		Total   int                    `json:"total"`
		Summary pipeline.StatusSummary `json:"summary"`
		Stats   model.Statistics       `json:"statistics"`
	}](t, rr)
	assert.Equal(t, 2, status.Total)
	assert.Equal(t, 1, status.Summary.ReadyForUsers)
	assert.Equal(t, 2, status.Stats.Records)

	rr = env.do(t, http.MethodGet, "/api/admin/runs?limit=5", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	runs := decode[struct {
		Runs []runView `json:"runs"`
	}](t, rr)
	require.Len(t, runs.Runs, 1)
	assert.Equal(t, model.StageExtract, runs.Runs[0].Stage)
	assert.True(t, json.Valid(runs.Runs[0].Data))
}

func TestResultStatus(t *testing.T) {
	assert.Equal(t, "ok", resultStatus(&model.StageResult{Success: true}))
	assert.Equal(t, "warning", resultStatus(&model.StageResult{}))
	assert.Equal(t, "error", resultStatus(&model.StageResult{Errors: []string{"boom"}}))
}
