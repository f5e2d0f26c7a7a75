package extract

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/zakupki-realty/internal/gis"
	"github.com/sells-group/zakupki-realty/internal/model"
)

const (
	maxPromptChars = 200_000
	headChars      = 100_000
	tailChars      = 50_000

	truncationMarker = "\n*** Текст был сокращён для ограничений LLM ***\n"

	maxRooms = 5
)

var (
	digitsRe = regexp.MustCompile(`\d+`)
	numberRe = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	rangeRe  = regexp.MustCompile(`^(\d+)\s*[-–]\s*(\d+)`)
)

// Truncate keeps the head and tail of texts longer than the prompt limit,
// joined by a marker. Lengths are counted in characters, not bytes.
func Truncate(text string) (string, bool) {
	if utf8.RuneCountInString(text) <= maxPromptChars {
		return text, false
	}
	r := []rune(text)
	return string(r[:headChars]) + truncationMarker + string(r[len(r)-tailChars:]), true
}

// cleanJSON strips markdown fences and any prose around the first JSON
// object or array in text.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.Trim(text, "`")
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return text
	}
	closer := "}"
	if text[start] == '[' {
		closer = "]"
	}
	if end := strings.LastIndex(text, closer); end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

// decodeFields parses model output into a field map. An array yields its
// first object. Anything unparsable yields an empty map.
func decodeFields(content string) map[string]any {
	var raw any
	if err := json.Unmarshal([]byte(cleanJSON(content)), &raw); err != nil {
		return map[string]any{}
	}
	switch v := raw.(type) {
	case map[string]any:
		return v
	case []any:
		if len(v) > 0 {
			if m, ok := v[0].(map[string]any); ok {
				return m
			}
		}
	}
	return map[string]any{}
}

// asString renders a JSON scalar as trimmed text. Blank and "null" give nil.
func asString(v any) *string {
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return nil
	}
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	return &s
}

// asFloat accepts JSON numbers and strings such as "≥ 47,8".
func asFloat(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case string:
		m := numberRe.FindString(t)
		if m == "" {
			return nil
		}
		f, err := model.ParseNumber(m)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

var roomWords = []struct {
	word  string
	rooms int
}{
	{"однокомнатн", 1}, {"1-комнатн", 1}, {"1 комнатн", 1},
	{"двухкомнатн", 2}, {"2-комнатн", 2}, {"2 комнатн", 2},
	{"трехкомнатн", 3}, {"трёхкомнатн", 3}, {"3-комнатн", 3}, {"3 комнатн", 3},
	{"четырехкомнатн", 4}, {"четырёхкомнатн", 4}, {"4-комнатн", 4}, {"4 комнатн", 4},
	{"пятикомнатн", 5}, {"5-комнатн", 5}, {"5 комнатн", 5},
}

var inequalityMarkers = []string{
	"не менее", "не более", "больше", "меньше", ">=", "<=", ">", "<", "≥", "≤",
}

// NormalizeRooms converts a room-count value into a single count ("2") or a
// list of acceptable counts ("[2, 3, 4, 5]"). Open ranges are capped at five
// rooms. Returns nil when no count can be read.
func NormalizeRooms(v any) *string {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) || t <= 0 {
			return nil
		}
		s := strconv.Itoa(int(t))
		return &s
	case string:
		return normalizeRoomsText(t)
	}
	return nil
}

func normalizeRoomsText(raw string) *string {
	s := strings.ToLower(strings.TrimSpace(raw))

	if !containsAny(s, inequalityMarkers) {
		for _, w := range roomWords {
			if strings.Contains(s, w.word) {
				out := strconv.Itoa(w.rooms)
				return &out
			}
		}
	}

	nums := digitsRe.FindAllString(s, -1)
	if len(nums) == 0 {
		return nil
	}
	first, _ := strconv.Atoi(nums[0])

	if compact := strings.ReplaceAll(s, " ", ""); len(compact) == 1 && compact >= "1" && compact <= "9" {
		return &compact
	}

	switch {
	case strings.Contains(s, ","):
		list := make([]int, 0, len(nums))
		for _, n := range nums {
			i, _ := strconv.Atoi(n)
			list = append(list, i)
		}
		return formatRooms(list)
	case containsAny(s, []string{"не менее", ">=", "≥", "больше или равно"}):
		return formatRooms(roomRange(first, maxRooms))
	case strings.HasPrefix(s, ">") || strings.Contains(s, "больше"):
		return formatRooms(roomRange(first+1, maxRooms))
	case containsAny(s, []string{"не более", "<=", "≤"}):
		return formatRooms(roomRange(1, first))
	case strings.HasPrefix(s, "<") || strings.Contains(s, "меньше"):
		return formatRooms(roomRange(1, first-1))
	}

	out := strconv.Itoa(first)
	return &out
}

// roomRange lists lo..hi with hi capped at maxRooms.
func roomRange(lo, hi int) []int {
	hi = min(hi, maxRooms)
	var out []int
	for i := lo; i <= hi; i++ {
		out = append(out, i)
	}
	return out
}

func formatRooms(list []int) *string {
	if len(list) == 0 {
		return nil
	}
	parts := make([]string, len(list))
	for i, n := range list {
		parts[i] = strconv.Itoa(n)
	}
	s := "[" + strings.Join(parts, ", ") + "]"
	return &s
}

// ParseRoomsList reads room counts from "1,2,3", "[1, 2]", "1-3" or "2".
// Free text ("двухкомнатная", "не менее 2") goes through NormalizeRooms
// first. Non-positive counts are dropped.
func ParseRoomsList(text string) []int {
	if list := parseRoomsCompact(text); len(list) > 0 {
		return list
	}
	if n := normalizeRoomsText(text); n != nil {
		return parseRoomsCompact(*n)
	}
	return nil
}

func parseRoomsCompact(text string) []int {
	s := strings.TrimSpace(strings.Trim(strings.TrimSpace(text), "[]"))
	if s == "" {
		return nil
	}

	var out []int
	switch {
	case strings.Contains(s, ","):
		for _, part := range strings.Split(s, ",") {
			if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil && n > 0 {
				out = append(out, n)
			}
		}
	case rangeRe.MatchString(s):
		m := rangeRe.FindStringSubmatch(s)
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		out = roomRange(max(lo, 1), hi)
	default:
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			out = []int{n}
		}
	}
	return out
}

// ParseFloor returns the first integer in text ("3", "этаж 3", "3-5").
func ParseFloor(text string) *int {
	m := digitsRe.FindString(text)
	if m == "" {
		return nil
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return nil
	}
	return &n
}

// CityFromAddress picks the settlement out of an address like
// "Пермский край, г. Пермь". A part carrying a settlement prefix wins;
// otherwise the last part is used.
func CityFromAddress(address string) string {
	parts := strings.Split(address, ",")
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if c := gis.CleanCity(p); c != p && c != "" {
			return c
		}
	}
	return gis.CleanCity(parts[len(parts)-1])
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
