// Package signal converts free-text trading instructions into validated
// order intents.
//
// The accepted format is line oriented and case-insensitive:
//
//	BUY EURUSD @1.0850
//	SL 1.0800
//	TP 1.0900
//
// Only the first line is mandatory. SL and TP lines may appear in any
// order; unrecognized lines are ignored.
package signal

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Side is the direction of a parsed signal.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Intent is the validated result of parsing a signal. Price, StopLoss and
// TakeProfit are nil when the signal did not carry them.
type Intent struct {
	Side       Side
	Symbol     string
	Price      *float64
	StopLoss   *float64
	TakeProfit *float64
}

// ParseError reports a malformed or inconsistent signal. It is always the
// caller's problem; retrying the same text will never succeed.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return e.Reason }

func parseErrorf(format string, args ...any) *ParseError {
	return &ParseError{Reason: fmt.Sprintf(format, args...)}
}

var firstLine = regexp.MustCompile(`^(BUY|SELL)\s+([A-Z0-9]+)(?:\s+@([\d.]+))?`)

// Parse converts raw signal text into an Intent. It is a pure function:
// no side effects, same input always gives the same result.
func Parse(text string) (Intent, error) {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return Intent{}, &ParseError{Reason: "empty signal"}
	}

	m := firstLine.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(lines[0])))
	if m == nil {
		return Intent{}, &ParseError{Reason: "invalid first line format, expected: ACTION SYMBOL [@PRICE]"}
	}

	intent := Intent{
		Side:   Side(m[1]),
		Symbol: m[2],
	}
	if m[3] != "" {
		p, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			return Intent{}, parseErrorf("invalid price value: %s", m[3])
		}
		intent.Price = &p
	}

	for _, line := range lines[1:] {
		fields := strings.Fields(strings.ToUpper(strings.TrimSpace(line)))
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "SL":
			v, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return Intent{}, parseErrorf("invalid SL value: %s", fields[1])
			}
			intent.StopLoss = &v
		case "TP":
			v, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				return Intent{}, parseErrorf("invalid TP value: %s", fields[1])
			}
			intent.TakeProfit = &v
		}
	}

	if err := intent.validate(); err != nil {
		return Intent{}, err
	}
	return intent, nil
}

// validate cross-checks SL/TP against the side. It only runs when entry
// price, SL and TP are all present, and deliberately enforces just the
// SL-vs-TP ordering: an entry price outside the SL/TP band passes. TP is
// sometimes left open-ended by signal providers, so the entry-band check
// stays advisory.
func (in Intent) validate() error {
	if in.StopLoss == nil || in.TakeProfit == nil || in.Price == nil {
		return nil
	}

	sl, tp, entry := *in.StopLoss, *in.TakeProfit, *in.Price
	switch in.Side {
	case Buy:
		if !(sl < entry && entry < tp) {
			if sl >= tp {
				return &ParseError{Reason: "for BUY, SL must be lower than TP"}
			}
		}
	case Sell:
		if !(sl > entry && entry > tp) {
			if sl <= tp {
				return &ParseError{Reason: "for SELL, SL must be higher than TP"}
			}
		}
	}
	return nil
}
