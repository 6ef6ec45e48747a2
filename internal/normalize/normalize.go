// Package normalize converts raw extracted strings into canonical, comparable
// forms: business keys, names, monetary amounts and dates.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// ISODate is the canonical date layout.
	ISODate = "2006-01-02"
	// DottedDate is the day-first layout printed on ledger documents.
	DottedDate = "02.01.2006"
	// FilenameDate is the day.month prefix of derived filenames.
	FilenameDate = "02.01"
)

var (
	nonDigit    = regexp.MustCompile(`\D`)
	nonAlnum    = regexp.MustCompile(`[^A-Za-z0-9]`)
	nonAmount   = regexp.MustCompile(`[^0-9,.]`)
	dottedShape = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}$`)
	isoShape    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// BusinessKey strips every non-digit and then leading zeros. When only zeros
// remain the digit string is returned unstripped.
func BusinessKey(raw string) string {
	digits := nonDigit.ReplaceAllString(raw, "")
	if stripped := strings.TrimLeft(digits, "0"); stripped != "" {
		return stripped
	}
	return digits
}

// Name reduces a display name to lowercase ASCII alphanumerics for equality checks.
func Name(raw string) string {
	return strings.ToLower(nonAlnum.ReplaceAllString(raw, ""))
}

// Amount parses a monetary string written with either decimal convention.
// When both '.' and ',' occur the rightmost one is the decimal separator; a
// lone ',' is a decimal separator. The second result is false when the input
// is empty or unparseable.
func Amount(raw string) (float64, bool) {
	s := strings.NewReplacer("€", "", "$", "").Replace(raw)
	s = strings.Join(strings.Fields(s), "")
	s = nonAmount.ReplaceAllString(s, "")
	if s == "" {
		return 0, false
	}
	dot := strings.LastIndex(s, ".")
	comma := strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0 && dot > comma:
		s = strings.ReplaceAll(s, ",", "")
	case dot >= 0 && comma >= 0:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case comma >= 0:
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Finite reports whether v is neither infinite nor NaN.
func Finite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

// AmountPtr is Amount returning nil for unknown amounts.
func AmountPtr(raw string) *float64 {
	v, ok := Amount(raw)
	if !ok {
		return nil
	}
	return &v
}

// Date converts dd.mm.yyyy to yyyy-mm-dd and passes canonical dates through.
// Anything else, including impossible calendar dates, yields "".
func Date(raw string) string {
	s := strings.TrimSpace(raw)
	switch {
	case dottedShape.MatchString(s):
		t, err := time.Parse(DottedDate, s)
		if err != nil {
			return ""
		}
		return t.Format(ISODate)
	case isoShape.MatchString(s):
		if _, err := time.Parse(ISODate, s); err != nil {
			return ""
		}
		return s
	}
	return ""
}

// FilenameDay converts a canonical yyyy-mm-dd date into dd.mm.
func FilenameDay(iso string) (string, bool) {
	if !isoShape.MatchString(iso) {
		return "", false
	}
	t, err := time.Parse(ISODate, iso)
	if err != nil {
		return "", false
	}
	return t.Format(FilenameDate), true
}
