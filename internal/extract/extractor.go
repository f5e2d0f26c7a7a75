// Package extract turns a procurement record's combined document text into
// structured property attributes with a single language-model call.
package extract

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zakupki-realty/internal/gis"
	"github.com/sells-group/zakupki-realty/internal/model"
	"github.com/sells-group/zakupki-realty/internal/resilience"
)

// ErrNoText is returned for records without document text.
var ErrNoText = eris.New("extract: record has no text")

// Extractor calls the model through a circuit breaker and retries transient
// failures. Malformed model output is not an error; it yields a result with
// only the fallback fields filled.
type Extractor struct {
	llm     Completer
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

// New creates an Extractor. A nil breaker gets the default configuration.
func New(llm Completer, breaker *resilience.CircuitBreaker, retry resilience.RetryConfig) *Extractor {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())
	}
	retry.OnRetry = resilience.RetryLogger("llm", "extract")
	return &Extractor{llm: llm, breaker: breaker, retry: retry}
}

// Extract runs the model on rec's combined text.
func (e *Extractor) Extract(ctx context.Context, rec *model.Record) (*model.ExtractionResult, error) {
	if !rec.HasText() {
		return nil, eris.Wrap(ErrNoText, rec.RegNumber)
	}

	text, truncated := Truncate(rec.CombinedText)
	if truncated {
		zap.L().Debug("extract: text truncated", zap.String("reg_number", rec.RegNumber))
	}
	prompt := Prompt{RegNumber: rec.RegNumber, System: SystemPrompt, User: UserPrompt(text, truncated)}

	content, err := resilience.ExecuteVal(ctx, e.breaker, func(ctx context.Context) (string, error) {
		return resilience.DoVal(ctx, e.retry, func(ctx context.Context) (string, error) {
			return e.llm.Complete(ctx, prompt)
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "extract: model call for %s", rec.RegNumber)
	}

	fields := decodeFields(content)
	if len(fields) == 0 {
		zap.L().Warn("extract: unusable model output",
			zap.String("reg_number", rec.RegNumber),
			zap.Int("content_len", len(content)),
		)
	}
	res := BuildResult(rec, fields)

	zap.L().Info("extract: record processed",
		zap.String("reg_number", rec.RegNumber),
		zap.Stringp("city", res.City),
	)
	return res, nil
}

// BuildResult maps decoded model fields onto an ExtractionResult and applies
// the fallbacks: rooms normalization, city cleanup or derivation from the
// address, floor_min for floor, and the record description for the name.
func BuildResult(rec *model.Record, fields map[string]any) *model.ExtractionResult {
	res := &model.ExtractionResult{
		RegNumber:         rec.RegNumber,
		ZakupkaName:       asString(fields[model.FieldZakupkaName]),
		Address:           asString(fields[model.FieldAddress]),
		City:              asString(fields[model.FieldCity]),
		AreaMinM2:         asFloat(fields[model.FieldAreaMinM2]),
		AreaMaxM2:         asFloat(fields[model.FieldAreaMaxM2]),
		Rooms:             asString(fields[model.FieldRooms]),
		RoomsParsed:       asString(fields[model.FieldRoomsParsed]),
		Floor:             asString(fields[model.FieldFloor]),
		BuildingFloorsMin: asString(fields[model.FieldBuildingFloorsMin]),
		YearBuildStr:      asString(fields[model.FieldYearBuildStr]),
		WearPercent:       asFloat(fields[model.FieldWearPercent]),
		Zakazchik:         asString(fields[model.FieldZakazchik]),
	}

	if raw, ok := fields[model.FieldRooms]; ok && raw != nil {
		res.RoomsParsed = NormalizeRooms(raw)
	} else if res.RoomsParsed != nil {
		if parsed := normalizeRoomsText(*res.RoomsParsed); parsed != nil {
			res.RoomsParsed = parsed
		}
	}

	switch {
	case res.City != nil:
		c := gis.CleanCity(*res.City)
		res.City = &c
	case res.Address != nil:
		if c := CityFromAddress(*res.Address); c != "" {
			res.City = &c
		}
	}
	if res.City != nil && *res.City == "" {
		res.City = nil
	}

	if res.Floor == nil {
		res.Floor = asString(fields["floor_min"])
	}

	if res.ZakupkaName == nil && strings.TrimSpace(rec.Description) != "" {
		d := rec.Description
		res.ZakupkaName = &d
	}
	return res
}
