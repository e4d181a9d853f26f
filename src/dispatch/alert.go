package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"

	"signalbridge/src/model"
)

// Alert is the typed form of an inbound TradingView payload. TradingView
// alert templates are free-form, so each field is resolved through an
// ordered fallback over the spellings seen in the wild rather than ad hoc
// property probing.
type Alert struct {
	Indicator string
	Symbol    string
	Direction string
	Size      string
	Leverage  int
	Secret    string
}

var (
	indicatorFields = []string{"indicator", "strategy", "name"}
	symbolFields    = []string{"symbol", "ticker"}
	directionFields = []string{"direction", "side", "action"}
)

func firstString(payload map[string]any, keys []string) string {
	for _, key := range keys {
		if v, ok := payload[key]; ok {
			switch t := v.(type) {
			case string:
				if s := strings.TrimSpace(t); s != "" {
					return s
				}
			case float64:
				return fmt.Sprintf("%v", t)
			}
		}
	}
	return ""
}

// ParseAlert decodes and validates a webhook body. Symbol and direction are
// required; the indicator may legitimately be absent (minimal alert
// templates omit it and rely on the single-route fallback).
func ParseAlert(body []byte) (Alert, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return Alert{}, fmt.Errorf("malformed JSON body")
	}

	alert := Alert{
		Indicator: firstString(payload, indicatorFields),
		Symbol:    firstString(payload, symbolFields),
		Direction: firstString(payload, directionFields),
		Size:      firstString(payload, []string{"size", "qty", "quantity"}),
		Secret:    firstString(payload, []string{"secret", "webhook_secret"}),
	}
	if lev, ok := payload["leverage"].(float64); ok {
		alert.Leverage = int(lev)
	}

	if alert.Symbol == "" {
		return Alert{}, fmt.Errorf("missing required field: symbol")
	}
	if alert.Direction == "" {
		return Alert{}, fmt.Errorf("missing required field: direction")
	}
	return alert, nil
}

// ParseAction classifies the free-form direction text: anything mentioning
// close or exit is a close, everything else opens.
func ParseAction(direction string) string {
	d := strings.ToLower(direction)
	if strings.Contains(d, "close") || strings.Contains(d, "exit") {
		return model.ActionClose
	}
	return model.ActionOpen
}

// ParseSide classifies the side: short/sell means short, long is the
// default because most templates only ever say "buy" or nothing.
func ParseSide(direction string) string {
	d := strings.ToLower(direction)
	if strings.Contains(d, "short") || strings.Contains(d, "sell") {
		return model.SideShort
	}
	return model.SideLong
}
