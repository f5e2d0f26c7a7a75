package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/zakupki-realty/internal/model"
	"github.com/sells-group/zakupki-realty/internal/store"
)

const testUser int64 = 1

type harness struct {
	p         *Pipeline
	st        *store.SQLiteStore
	source    *mockSource
	extractor *mockExtractor
	urls      *mockURLBuilder
	collector *mockCollector
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"), store.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	h := &harness{
		st:        st,
		source:    &mockSource{},
		extractor: &mockExtractor{},
		urls:      &mockURLBuilder{},
		collector: &mockCollector{},
	}
	h.p = New(st, h.source, h.extractor, h.urls, h.collector, Options{MaxPages: 5})
	return h
}

func (h *harness) seedRecord(t *testing.T, reg string, status model.Status) *model.Record {
	t.Helper()
	ctx := context.Background()
	price := 4200000.0
	rec := &model.Record{
		RegNumber:    reg,
		Description:  "Приобретение жилого помещения для детей-сирот",
		InitialPrice: &price,
		Link:         "https://zakupki.gov.ru/epz/order/notice/ea20/view/common-info.html?regNumber=" + reg,
		CombinedText: "=== ПЕЧАТНАЯ ФОРМА ===\nКвартира, г. Пермь, площадь не менее 33 кв.м",
	}
	require.NoError(t, h.st.SaveRecord(ctx, rec))
	if status != model.StatusRaw {
		uid := testUser
		_, err := h.st.AdvanceStatus(ctx, reg, status, &uid)
		require.NoError(t, err)
	}
	return rec
}

func (h *harness) decide(t *testing.T, reg string, review int, kind model.DecisionKind) {
	t.Helper()
	require.NoError(t, h.st.SaveDecision(context.Background(), &model.Decision{
		UserID:    testUser,
		RegNumber: reg,
		Stage:     review,
		Decision:  kind,
	}))
}

func (h *harness) record(t *testing.T, reg string) *model.Record {
	t.Helper()
	rec, err := h.st.GetRecord(context.Background(), reg)
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec
}

func candidate(reg string) model.Candidate {
	price := 3900000.0
	return model.Candidate{
		RegNumber:    reg,
		Description:  "Приобретение квартиры",
		UpdateDate:   time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		BidEndDate:   "25.01.2025 09:00",
		InitialPrice: &price,
		Link:         "https://zakupki.gov.ru/epz/order/notice/ea20/view/common-info.html?regNumber=" + reg,
	}
}

func listings(n int, base float64) []model.Listing {
	items := make([]model.Listing, n)
	for i := range items {
		price := base + float64(i)*100000
		items[i] = model.Listing{
			Rank:           i + 1,
			PriceRub:       &price,
			Address:        fmt.Sprintf("ул. Ленина, %d", i+1),
			ExternalSource: model.SourceCian,
			FetchedAt:      time.Now().UTC(),
		}
	}
	return items
}

func ptr[T any](v T) *T { return &v }
