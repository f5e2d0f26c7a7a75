package scrape

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/zakupki-realty/internal/resilience"
	"github.com/sells-group/zakupki-realty/pkg/jina"
)

type mockJina struct {
	mock.Mock
}

func (m *mockJina) Read(ctx context.Context, targetURL string, opts ...jina.ReadOption) (*jina.ReadResponse, error) {
	args := m.Called(ctx, targetURL)
	if r := args.Get(0); r != nil {
		return r.(*jina.ReadResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

const listingsMarkdown = "# Купить квартиру в Казани\n\n" +
	"2-комн. квартира, 54 м², 5/9 этаж\n5 300 000 ₽\nулица Чистопольская, 20\n\n" +
	"1-комн. квартира, 38 м², 2/5 этаж\n4 100 000 ₽\nулица Баумана, 9"

func TestJinaAdapter_Name(t *testing.T) {
	t.Parallel()
	adapter := NewJinaAdapter(new(mockJina), JinaOptions{})
	assert.Equal(t, "jina", adapter.Name())
}

func TestJinaAdapter_Supports(t *testing.T) {
	t.Parallel()
	adapter := NewJinaAdapter(new(mockJina), JinaOptions{})
	assert.True(t, adapter.Supports("https://2gis.ru/kazan"))
	assert.True(t, adapter.Supports(""))
}

func TestJinaAdapter_Scrape_Success(t *testing.T) {
	t.Parallel()
	m := new(mockJina)
	adapter := NewJinaAdapter(m, JinaOptions{WaitForSelector: "article", PageTimeout: time.Minute})

	m.On("Read", mock.Anything, "https://2gis.ru/kazan/search").Return(&jina.ReadResponse{
		Code: 200,
		Data: jina.ReadData{
			Title:   "Купить квартиру в Казани",
			Content: listingsMarkdown,
			Usage:   jina.ReadUsage{Tokens: 500},
		},
	}, nil)

	result, err := adapter.Scrape(context.Background(), "https://2gis.ru/kazan/search")
	require.NoError(t, err)
	assert.Equal(t, "jina", result.Source)
	assert.Equal(t, "https://2gis.ru/kazan/search", result.Page.URL)
	assert.Equal(t, "Купить квартиру в Казани", result.Page.Title)
	assert.Equal(t, 200, result.Page.StatusCode)
	assert.Equal(t, listingsMarkdown, result.Page.Markdown)
	assert.Empty(t, result.Page.HTML)
	m.AssertExpectations(t)
}

func TestJinaAdapter_Scrape_HTMLInContent(t *testing.T) {
	t.Parallel()
	m := new(mockJina)
	adapter := NewJinaAdapter(m, JinaOptions{Format: "html"})

	markup := "<html><body><article><h3>2-комн. квартира, 54 м²</h3><div>5 300 000 ₽</div></article>" +
		strings.Repeat("<p>реклама</p>", 10) + "</body></html>"
	m.On("Read", mock.Anything, "https://2gis.ru/kazan/search").Return(&jina.ReadResponse{
		Code: 200,
		Data: jina.ReadData{Content: markup},
	}, nil)

	result, err := adapter.Scrape(context.Background(), "https://2gis.ru/kazan/search")
	require.NoError(t, err)
	assert.Equal(t, markup, result.Page.HTML)
	assert.Contains(t, result.Page.Markdown, "5 300 000 ₽")
	assert.NotContains(t, result.Page.Markdown, "<article>")
}

func TestJinaAdapter_Scrape_ClientError(t *testing.T) {
	t.Parallel()
	m := new(mockJina)
	adapter := NewJinaAdapter(m, JinaOptions{})

	m.On("Read", mock.Anything, "https://2gis.ru/fail").Return(nil, errors.New("connection refused"))

	_, err := adapter.Scrape(context.Background(), "https://2gis.ru/fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestJinaAdapter_Scrape_NeedsFallback(t *testing.T) {
	t.Parallel()
	m := new(mockJina)
	adapter := NewJinaAdapter(m, JinaOptions{})

	m.On("Read", mock.Anything, "https://2gis.ru/blocked").Return(&jina.ReadResponse{
		Code: 200,
		Data: jina.ReadData{Content: "short"},
	}, nil)

	_, err := adapter.Scrape(context.Background(), "https://2gis.ru/blocked")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs fallback")
}

func TestJinaAdapter_CircuitOpensAfterFailures(t *testing.T) {
	t.Parallel()
	m := new(mockJina)
	adapter := NewJinaAdapter(m, JinaOptions{})

	m.On("Read", mock.Anything, "https://2gis.ru/fail").Return(nil, errors.New("timeout"))

	for range 3 {
		_, err := adapter.Scrape(context.Background(), "https://2gis.ru/fail")
		require.Error(t, err)
	}
	assert.False(t, adapter.Supports("https://2gis.ru/fail"))

	_, err := adapter.Scrape(context.Background(), "https://2gis.ru/fail")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	m.AssertNumberOfCalls(t, "Read", 3)
}

func TestNeedsFallback(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("квартира ", 20)

	tests := []struct {
		name string
		resp *jina.ReadResponse
		want bool
	}{
		{"nil", nil, true},
		{"error code", &jina.ReadResponse{Code: 451, Data: jina.ReadData{Content: long}}, true},
		{"short", &jina.ReadResponse{Code: 200, Data: jina.ReadData{Content: "мало"}}, true},
		{"challenge", &jina.ReadResponse{Code: 200, Data: jina.ReadData{Content: long + " Подтвердите, что вы не робот"}}, true},
		{"html only", &jina.ReadResponse{Code: 200, Data: jina.ReadData{HTML: "<div>" + long + "</div>"}}, false},
		{"usable", &jina.ReadResponse{Code: 200, Data: jina.ReadData{Content: long}}, false},
		{"missing code", &jina.ReadResponse{Data: jina.ReadData{Content: long}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, needsFallback(tt.resp))
		})
	}
}
