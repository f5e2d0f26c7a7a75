package portal

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/zakupki-realty/internal/fetcher"
)

const searchPage = `<html><body>
<div class="search-registry-entry-block">
  <div class="registry-entry__header-mid__number">
    <a href="/epz/order/notice/ea20/view/common-info.html?regNumber=0373200000124000001&amp;x=1">№ 0373200000124000001</a>
  </div>
  <div class="registry-entry__body-block">
    <div class="registry-entry__body-title">Объект закупки</div>
    <div class="registry-entry__body-value">Приобретение жилого помещения (квартиры) для детей-сирот</div>
  </div>
  <div class="data-block">
    <div class="data-block__title">Обновлено</div>
    <div class="data-block__value">15.03.2024 10:30</div>
  </div>
  <div class="data-block">
    <div class="data-block__title">Окончание подачи заявок</div>
    <div class="data-block__value">25.03.2024</div>
  </div>
  <div class="price-block">
    <div class="price-block__title">Начальная цена</div>
    <div class="price-block__value">3 250 000,50 ₽</div>
  </div>
</div>
<div class="search-registry-entry-block">
  <div class="registry-entry__header-mid__number">
    <a href="https://zakupki.gov.ru/epz/order/notice/ea20/view/common-info.html?regNumber=0373200000124000002">№ 0373200000124000002</a>
  </div>
  <div class="registry-entry__body-value">Приобретение жилых помещений в многоквартирном доме, две квартиры</div>
</div>
<div class="search-registry-entry-block">
  <div class="registry-entry__header-mid__number"><span>без ссылки</span></div>
</div>
<div class="search-registry-entry-block">
  <div class="registry-entry__header-mid__number">
    <a href="/epz/order/notice/view.html?id=7">0373200000124000003</a>
  </div>
  <div class="registry-entry__body-value">Покупка квартиры в ДДУ</div>
</div>
</body></html>`

const documentsPage = `<html><body>
<div class="attachment">
  <span class="section__value">Техническое задание.docx</span>
  <a href="https://zakupki.gov.ru/44fz/filestore/public/1.0/download/priz/file.html?uid=ABC123">скачать</a>
</div>
<div class="attachment">
  <span class="section__value">Битый файл</span>
  <a href="/44fz/filestore/public/1.0/download/priz/file.html?uid=BROKEN">скачать</a>
</div>
<div class="attachment">
  <span class="section__value">Без ссылки</span>
</div>
</body></html>`

func docxBytes(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var xml strings.Builder
	xml.WriteString(`<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		xml.WriteString("<w:p><w:r><w:t>" + p + "</w:t></w:r></w:p>")
	}
	xml.WriteString("</w:body></w:document>")

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(xml.String()))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func printForm() string {
	return "<html><head><title>Печатная форма</title><style>.x{}</style></head><body>" +
		"<script>var a = 1;</script>" +
		"<h1>Извещение о проведении электронного аукциона</h1>" +
		"<p>Объект закупки: квартира общей площадью не менее 33 кв.м в г. Казань</p>" +
		"<p>Заказчик: Исполнительный комитет муниципального образования</p>" +
		"</body></html>"
}

type registry struct {
	srv         *httptest.Server
	searchCalls atomic.Int32
	failSearch  int32
	failStatus  int
}

func newRegistry(t *testing.T) *registry {
	t.Helper()
	reg := &registry{failStatus: http.StatusServiceUnavailable}
	win, err := charmap.Windows1251.NewEncoder().String(printForm())
	require.NoError(t, err)
	docx := docxBytes(t, "Площадь не менее 33 кв.м", "Этаж не первый")

	mux := http.NewServeMux()
	mux.HandleFunc("/epz/order/extendedsearch/results.html", func(w http.ResponseWriter, r *http.Request) {
		if reg.searchCalls.Add(1) <= reg.failSearch {
			w.WriteHeader(reg.failStatus)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(searchPage)) //nolint:errcheck
	})
	mux.HandleFunc("/epz/order/notice/printForm/view.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=windows-1251")
		w.Write([]byte(win)) //nolint:errcheck
	})
	mux.HandleFunc("/epz/order/notice/zk20/view/documents.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		body := strings.ReplaceAll(documentsPage, "https://zakupki.gov.ru", "")
		w.Write([]byte(body)) //nolint:errcheck
	})
	mux.HandleFunc("/44fz/filestore/public/1.0/download/priz/file.html", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("uid") {
		case "ABC123":
			w.Write(docx) //nolint:errcheck
		default:
			w.Write([]byte("not a document")) //nolint:errcheck
		}
	})
	reg.srv = httptest.NewServer(mux)
	t.Cleanup(reg.srv.Close)
	return reg
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	f, err := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:     5 * time.Second,
		MaxRetries:  1,
		DefaultRate: 1000,
		BaseBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	return New(f, Options{
		BaseURL:      baseURL,
		DocsDir:      t.TempDir(),
		RetryBackoff: time.Millisecond,
	})
}

func TestSearchURL(t *testing.T) {
	c := New(nil, Options{})
	u, err := url.Parse(c.SearchURL(3))
	require.NoError(t, err)
	assert.Equal(t, "zakupki.gov.ru", u.Host)
	assert.Equal(t, "/epz/order/extendedsearch/results.html", u.Path)

	q := u.Query()
	assert.Equal(t, "3", q.Get("pageNumber"))
	assert.Equal(t, "68.10.11.000", q.Get("okpd2IdsCodes"))
	assert.Equal(t, "8890776", q.Get("okpd2Ids"))
	assert.Equal(t, "on", q.Get("fz44"))
	assert.Equal(t, "AF", q.Get("orderStages"))
	assert.Equal(t, "UPDATE_DATE", q.Get("sortBy"))
	assert.Equal(t, "_10", q.Get("recordsPerPage"))
}

func TestSearchURL_CustomCodes(t *testing.T) {
	c := New(nil, Options{BaseURL: "http://localhost:9/", OKPD2Codes: []string{"68.10.12.000"}})
	u, err := url.Parse(c.SearchURL(1))
	require.NoError(t, err)
	assert.Equal(t, "localhost:9", u.Host)
	assert.Equal(t, "68.10.12.000", u.Query().Get("okpd2IdsCodes"))
	assert.Empty(t, u.Query().Get("okpd2Ids"))
}

func TestParseSearchResults(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(searchPage))
	require.NoError(t, err)

	cands := parseSearchResults(doc, "https://zakupki.gov.ru")
	require.Len(t, cands, 3)

	first := cands[0]
	assert.Equal(t, "0373200000124000001", first.RegNumber)
	assert.Equal(t, "Приобретение жилого помещения (квартиры) для детей-сирот", first.Description)
	assert.Equal(t, time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), first.UpdateDate)
	assert.Equal(t, "25.03.2024", first.BidEndDate)
	require.NotNil(t, first.InitialPrice)
	assert.InDelta(t, 3250000.50, *first.InitialPrice, 0.001)
	assert.Equal(t, "https://zakupki.gov.ru/epz/order/notice/ea20/view/common-info.html?regNumber=0373200000124000001&x=1", first.Link)

	assert.Equal(t, "0373200000124000002", cands[1].RegNumber)
	assert.Nil(t, cands[1].InitialPrice)
	assert.True(t, cands[1].UpdateDate.IsZero())

	assert.Equal(t, "0373200000124000003", cands[2].RegNumber, "number falls back to link text")
}

func TestParseSearchResults_FormFallback(t *testing.T) {
	page := `<div class="registry-entry__form">
	  <div class="registry-entry__header-mid__number"><a href="?regNumber=42">42</a></div>
	</div>`
	doc, err := html.Parse(strings.NewReader(page))
	require.NoError(t, err)

	cands := parseSearchResults(doc, "https://zakupki.gov.ru")
	require.Len(t, cands, 1)
	assert.Equal(t, "42", cands[0].RegNumber)
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1 234 567,89 ₽", 1234567.89, true},
		{"2 500 000,00 руб.", 2500000, true},
		{"990 000 р", 990000, true},
		{"не указана", 0, false},
	}
	for _, tt := range tests {
		got, ok := parsePrice(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.InDelta(t, tt.want, got, 0.001, tt.in)
	}
}

func TestParseDate(t *testing.T) {
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), parseDate("02.01.2024"))
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), parseDate(" 2024-01-02 "))
	assert.True(t, parseDate("вчера").IsZero())
}

func TestSearch_ExcludesKeywords(t *testing.T) {
	reg := newRegistry(t)
	c := newTestClient(t, reg.srv.URL)

	cands, err := c.Search(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "0373200000124000001", cands[0].RegNumber)
	assert.Equal(t, reg.srv.URL+"/epz/order/notice/ea20/view/common-info.html?regNumber=0373200000124000001&x=1", cands[0].Link)
}

func TestSearch_RetriesPage(t *testing.T) {
	reg := newRegistry(t)
	reg.failSearch = 2
	c := newTestClient(t, reg.srv.URL)

	cands, err := c.Search(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, cands, 1)
	assert.Equal(t, int32(3), reg.searchCalls.Load())
}

func TestSearch_FailsAfterAttempts(t *testing.T) {
	reg := newRegistry(t)
	reg.failSearch = 10
	c := newTestClient(t, reg.srv.URL)

	_, err := c.Search(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "portal: search page 1")
	assert.Equal(t, int32(3), reg.searchCalls.Load())
}

func TestSearch_NotFoundIsNotRetried(t *testing.T) {
	reg := newRegistry(t)
	reg.failSearch = 10
	reg.failStatus = http.StatusNotFound
	c := newTestClient(t, reg.srv.URL)

	_, err := c.Search(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 404")
	assert.Equal(t, int32(1), reg.searchCalls.Load())
}

func TestParseAttachments(t *testing.T) {
	doc, err := html.Parse(strings.NewReader(documentsPage))
	require.NoError(t, err)

	atts := parseAttachments(doc, "https://zakupki.gov.ru")
	require.Len(t, atts, 2)
	assert.Equal(t, "Техническое задание.docx", atts[0].Name)
	assert.Equal(t, "https://zakupki.gov.ru/44fz/filestore/public/1.0/download/priz/file.html?uid=ABC123", atts[0].URL)
	assert.Equal(t, "Битый файл", atts[1].Name)
}

func TestPrintForm_DecodesAndStripsScripts(t *testing.T) {
	reg := newRegistry(t)
	c := newTestClient(t, reg.srv.URL)

	text, err := c.PrintForm(context.Background(), "0373200000124000001")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "Извещение о проведении электронного аукциона\n"))
	assert.Contains(t, text, "в г. Казань")
	assert.NotContains(t, text, "var a")
	assert.NotContains(t, text, "Печатная форма")
}

func TestPrintForm_TooShort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>Страница не найдена</body></html>")) //nolint:errcheck
	}))
	defer srv.Close()

	text, err := newTestClient(t, srv.URL).PrintForm(context.Background(), "1")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestFetchDocuments_CombinesPrintFormAndAttachments(t *testing.T) {
	reg := newRegistry(t)
	c := newTestClient(t, reg.srv.URL)

	text, err := c.FetchDocuments(context.Background(), "0373200000124000001")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(text, "=== ПЕЧАТНАЯ ФОРМА ===\nИзвещение"))
	assert.Contains(t, text, "=== Документ: Техническое задание.docx ===\nПлощадь не менее 33 кв.м\nЭтаж не первый")
	assert.NotContains(t, text, "Битый файл")

	entries, err := os.ReadDir(c.RecordDir("0373200000124000001") + "/documents")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	require.NoError(t, c.Cleanup("0373200000124000001"))
	_, err = os.Stat(c.RecordDir("0373200000124000001"))
	assert.True(t, os.IsNotExist(err))
}

func TestFetchDocuments_NothingReadable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	text, err := newTestClient(t, srv.URL).FetchDocuments(context.Background(), "1")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestDownload_NamesFileByContent(t *testing.T) {
	reg := newRegistry(t)
	c := newTestClient(t, reg.srv.URL)
	dir := t.TempDir()
	base := reg.srv.URL + "/44fz/filestore/public/1.0/download/priz/file.html?uid="

	path, err := c.download(context.Background(), dir, Attachment{Name: "Техническое задание", URL: base + "ABC123"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".docx"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("PK")))

	path, err = c.download(context.Background(), dir, Attachment{Name: "Битый файл", URL: base + "BROKEN"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".bin"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestDownload_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	dir := t.TempDir()

	_, err := newTestClient(t, srv.URL).download(context.Background(), dir, Attachment{Name: "ТЗ", URL: srv.URL + "/file"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 404")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileName(t *testing.T) {
	name := fileName("Проект контракта (ред. 2).docx", fetcher.KindDOCX)
	assert.True(t, strings.HasPrefix(name, "Проект контракта ред 2docx_"))
	assert.True(t, strings.HasSuffix(name, ".docx"))

	long := fileName(strings.Repeat("я", 80), fetcher.KindPDF)
	assert.Equal(t, 50+1+8+len(".pdf"), len([]rune(long)))
	assert.NotEqual(t, fileName("a", fetcher.KindPDF), fileName("b", fetcher.KindPDF))
}

func TestCleanup_MissingDir(t *testing.T) {
	c := New(nil, Options{DocsDir: t.TempDir()})
	assert.NoError(t, c.Cleanup("nothing-here"))
}
