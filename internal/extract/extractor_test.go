package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/zakupki-realty/internal/model"
	"github.com/sells-group/zakupki-realty/internal/resilience"
	"github.com/sells-group/zakupki-realty/pkg/openrouter"
)

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) Complete(ctx context.Context, p Prompt) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		Multiplier:     1,
	}
}

func testRecord() *model.Record {
	return &model.Record{
		RegNumber:    "0373100000124000001",
		Description:  "Приобретение жилого помещения",
		CombinedText: "=== ПЕЧАТНАЯ ФОРМА ===\nКвартира в г. Пермь",
	}
}

func TestExtract_MapsFieldsAndFallbacks(t *testing.T) {
	mc := new(mockCompleter)
	mc.On("Complete", mock.Anything, mock.MatchedBy(func(p Prompt) bool {
		return p.RegNumber == "0373100000124000001" &&
			p.System == SystemPrompt &&
			strings.Contains(p.User, "Квартира в г. Пермь")
	})).Return("```json\n"+`{
		"zakupka_name": null,
		"address": "Пермский край, г. Пермь",
		"rooms": "не менее 2",
		"area_min_m2": "47,8",
		"area_max_m2": 60,
		"floor_min": "2",
		"wear_percent": 12,
		"year_build_str": 2015
	}`+"\n```", nil)

	ex := New(mc, nil, fastRetry())
	res, err := ex.Extract(context.Background(), testRecord())
	require.NoError(t, err)

	assert.Equal(t, "0373100000124000001", res.RegNumber)
	require.NotNil(t, res.ZakupkaName)
	assert.Equal(t, "Приобретение жилого помещения", *res.ZakupkaName)
	require.NotNil(t, res.City)
	assert.Equal(t, "Пермь", *res.City)
	require.NotNil(t, res.Rooms)
	assert.Equal(t, "не менее 2", *res.Rooms)
	require.NotNil(t, res.RoomsParsed)
	assert.Equal(t, "[2, 3, 4, 5]", *res.RoomsParsed)
	require.NotNil(t, res.AreaMinM2)
	assert.InDelta(t, 47.8, *res.AreaMinM2, 0.001)
	require.NotNil(t, res.AreaMaxM2)
	assert.InDelta(t, 60, *res.AreaMaxM2, 0.001)
	require.NotNil(t, res.Floor)
	assert.Equal(t, "2", *res.Floor)
	require.NotNil(t, res.YearBuildStr)
	assert.Equal(t, "2015", *res.YearBuildStr)
	assert.Nil(t, res.Zakazchik)
	mc.AssertExpectations(t)
}

func TestExtract_CityFromModelIsCleaned(t *testing.T) {
	mc := new(mockCompleter)
	mc.On("Complete", mock.Anything, mock.Anything).
		Return(`{"city": "г. Казань", "address": "Республика Татарстан, г. Казань", "rooms_parsed": "двухкомнатная"}`, nil)

	res, err := New(mc, nil, fastRetry()).Extract(context.Background(), testRecord())
	require.NoError(t, err)
	require.NotNil(t, res.City)
	assert.Equal(t, "Казань", *res.City)
	require.NotNil(t, res.RoomsParsed)
	assert.Equal(t, "2", *res.RoomsParsed)
}

func TestExtract_MalformedOutputYieldsFallbackOnly(t *testing.T) {
	mc := new(mockCompleter)
	mc.On("Complete", mock.Anything, mock.Anything).Return("Извините, не могу помочь", nil)

	res, err := New(mc, nil, fastRetry()).Extract(context.Background(), testRecord())
	require.NoError(t, err)
	assert.Nil(t, res.City)
	assert.Nil(t, res.Address)
	require.NotNil(t, res.ZakupkaName)
	assert.Equal(t, "Приобретение жилого помещения", *res.ZakupkaName)
}

func TestExtract_NoText(t *testing.T) {
	mc := new(mockCompleter)
	rec := testRecord()
	rec.CombinedText = "   "

	_, err := New(mc, nil, fastRetry()).Extract(context.Background(), rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoText)
	mc.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestExtract_RetriesTransientErrors(t *testing.T) {
	mc := new(mockCompleter)
	mc.On("Complete", mock.Anything, mock.Anything).
		Return("", resilience.NewTransientError(eris.New("overloaded"), 529)).Once()
	mc.On("Complete", mock.Anything, mock.Anything).Return(`{"city": "Омск"}`, nil).Once()

	res, err := New(mc, nil, fastRetry()).Extract(context.Background(), testRecord())
	require.NoError(t, err)
	require.NotNil(t, res.City)
	assert.Equal(t, "Омск", *res.City)
	mc.AssertNumberOfCalls(t, "Complete", 2)
}

func TestExtract_PermanentErrorNotRetried(t *testing.T) {
	mc := new(mockCompleter)
	mc.On("Complete", mock.Anything, mock.Anything).Return("", eris.New("invalid api key"))

	_, err := New(mc, nil, fastRetry()).Extract(context.Background(), testRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract: model call for 0373100000124000001")
	mc.AssertNumberOfCalls(t, "Complete", 1)
}

func TestExtract_OpenCircuitSkipsModel(t *testing.T) {
	mc := new(mockCompleter)
	mc.On("Complete", mock.Anything, mock.Anything).Return("", eris.New("boom"))

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})
	ex := New(mc, cb, resilience.RetryConfig{MaxAttempts: 1})

	for range 2 {
		_, err := ex.Extract(context.Background(), testRecord())
		require.Error(t, err)
	}
	_, err := ex.Extract(context.Background(), testRecord())
	require.Error(t, err)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	mc.AssertNumberOfCalls(t, "Complete", 2)
}

func TestOpenRouterCompleter_EndToEnd(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "openai/gpt-4o-mini", body["model"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id": "gen-1",
			"choices": []map[string]any{{
				"message":       map[string]any{"role": "assistant", "content": `{"address": "Омская область, г. Омск", "rooms": 1}`},
				"finish_reason": "stop",
			}},
		})
	}))
	defer ts.Close()

	llm := NewOpenRouterCompleter(
		openrouter.NewClient("k", openrouter.WithBaseURL(ts.URL)),
		ModelSettings{Model: "openai/gpt-4o-mini", Temperature: 0.1, MaxTokens: 512},
	)
	res, err := New(llm, nil, fastRetry()).Extract(context.Background(), testRecord())
	require.NoError(t, err)
	require.NotNil(t, res.City)
	assert.Equal(t, "Омск", *res.City)
	require.NotNil(t, res.RoomsParsed)
	assert.Equal(t, "1", *res.RoomsParsed)
}

func TestOpenRouterCompleter_MarksServerErrorsTransient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error": {"message": "upstream unavailable", "code": 503}}`)) //nolint:errcheck
	}))
	defer ts.Close()

	llm := NewOpenRouterCompleter(openrouter.NewClient("k", openrouter.WithBaseURL(ts.URL)), ModelSettings{Model: "m"})
	_, err := llm.Complete(context.Background(), Prompt{User: "x"})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}
