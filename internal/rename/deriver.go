// Package rename derives canonical tax invoice filenames of the form
// dd.mm_Name_Order_Code.pdf from the original filename and document text.
package rename

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/odyssey-erp/invoicecheck/internal/normalize"
	"github.com/odyssey-erp/invoicecheck/internal/textscan"
)

// Extension is appended to every derived filename.
const Extension = ".pdf"

// Field names reported in FieldError.
const (
	FieldInvoiceCode = "invoice_code"
	FieldDate        = "date"
	FieldCustomer    = "customer"
	FieldOrder       = "order"
)

var (
	// ErrNoPrefixes is returned when the invoice code allow-list is empty.
	ErrNoPrefixes = errors.New("rename: invoice code prefix list is empty")
)

// Config holds the invoice code prefix allow-list.
type Config struct {
	Prefixes []string
}

// DefaultConfig returns the standard OM/PTR allow-list.
func DefaultConfig() Config {
	return Config{Prefixes: []string{"OM", "PTR"}}
}

// FieldError names one piece of metadata that blocked derivation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Result holds the metadata gathered for one invoice. Filename is empty unless
// every required piece was found.
type Result struct {
	Source      string       `json:"source"`
	InvoiceCode string       `json:"invoice_code,omitempty"`
	RawDate     string       `json:"raw_date,omitempty"`
	Date        string       `json:"date,omitempty"`
	Customer    string       `json:"customer,omitempty"`
	Order       string       `json:"order,omitempty"`
	Filename    string       `json:"derived_filename,omitempty"`
	Errors      []FieldError `json:"errors,omitempty"`
}

// OK reports whether a filename was derived.
func (r Result) OK() bool {
	return r.Filename != ""
}

// Err folds the field errors into one error, or nil when a filename was derived.
func (r Result) Err() error {
	if r.OK() {
		return nil
	}
	errs := make([]error, 0, len(r.Errors))
	for _, fe := range r.Errors {
		errs = append(errs, fe)
	}
	return fmt.Errorf("rename %s: %w", r.Source, errors.Join(errs...))
}

var (
	labelledDateRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bDate\s+(\d{4}-\d{2}-\d{2})`),
		regexp.MustCompile(`(?i)\bData\s+(\d{4}-\d{2}-\d{2})`),
	}
	bareDateRe = regexp.MustCompile(`\b(20\d{2}-\d{2}-\d{2})\b`)

	labelledOrderRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Order/Quote\s+([A-Za-z0-9_.-]+)`),
		regexp.MustCompile(`(?i)Order\s*[:#]?\s*([A-Za-z0-9_.-]+)`),
	}
	longDigitsRe = regexp.MustCompile(`\b(\d{6,})\b`)
	digitRunRe   = regexp.MustCompile(`\d+`)

	salutationRe    = regexp.MustCompile(`(?i)Exmo.*Sr`)
	companySuffixRe = regexp.MustCompile(`(?i)\b(LLC|UAB|LDA|LDA\.|S\.A|S\.A\.|Ltda|SIA)\b`)
	fiveDigitsRe    = regexp.MustCompile(`\d{5,}`)

	contactRe     = regexp.MustCompile(`@|https?://`)
	boilerplateRe = regexp.MustCompile(`(?i)\b(Tax ID|Capital Social|Contribuinte|Rua|Lisboa|Lisbon|Morada|Payment|Date)\b`)
	sixDigitsRe   = regexp.MustCompile(`\d{6,}`)
	letterRe      = regexp.MustCompile(`[A-Za-z]`)

	unsafeCharsRe = regexp.MustCompile(`[^A-Za-z0-9._ -]+`)
)

const (
	maxOrderDigits      = 8
	maxCompanyLineRunes = 60
)

// Deriver builds canonical filenames under one prefix allow-list.
type Deriver struct {
	codeRe   *regexp.Regexp
	date     textscan.Matcher[string]
	customer textscan.Matcher[textscan.Lines]
	order    textscan.Matcher[string]
}

// NewDeriver compiles the invoice code pattern for cfg.Prefixes.
func NewDeriver(cfg Config) (*Deriver, error) {
	alts := make([]string, 0, len(cfg.Prefixes))
	for _, p := range cfg.Prefixes {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		alts = append(alts, regexp.QuoteMeta(p))
	}
	if len(alts) == 0 {
		return nil, ErrNoPrefixes
	}
	codeRe, err := regexp.Compile(`(?i)((?:` + strings.Join(alts, "|") + `)\.\d{4}_\d+)`)
	if err != nil {
		return nil, fmt.Errorf("rename: compile code pattern: %w", err)
	}

	return &Deriver{
		codeRe: codeRe,
		date: textscan.FirstOf(
			textscan.Capture(labelledDateRes[0]),
			textscan.Capture(labelledDateRes[1]),
			textscan.Capture(bareDateRe),
		),
		customer: textscan.FirstOf[textscan.Lines](nearSalutation, beforeGreeting, companyLine),
		order: textscan.FirstOf(
			textscan.Capture(labelledOrderRes[0]),
			textscan.Capture(labelledOrderRes[1]),
			textscan.Capture(longDigitsRe),
		),
	}, nil
}

// ParseInvoiceCode finds the invoice code in a filename.
func (d *Deriver) ParseInvoiceCode(filename string) (string, bool) {
	return textscan.Capture(d.codeRe)(filename)
}

// FindDate returns the raw yyyy-mm-dd date of the invoice.
func (d *Deriver) FindDate(text string) (string, bool) {
	return d.date(text)
}

// FindCustomer returns the counterparty name.
func (d *Deriver) FindCustomer(lines textscan.Lines) (string, bool) {
	return d.customer(lines)
}

// FindOrder returns the order number, reduced to its longest digit run and
// capped at eight digits. A token without digits is returned as found.
func (d *Deriver) FindOrder(text string) (string, bool) {
	raw, ok := d.order(text)
	if !ok || raw == "" {
		return "", false
	}
	best := ""
	for _, chunk := range digitRunRe.FindAllString(raw, -1) {
		if len(chunk) > len(best) {
			best = chunk
		}
	}
	if best == "" {
		return raw, true
	}
	if len(best) > maxOrderDigits {
		best = best[:maxOrderDigits]
	}
	return best, true
}

// Derive gathers metadata for one invoice. A missing invoice code stops
// derivation immediately; any other missing piece is reported alongside the
// rest.
func (d *Deriver) Derive(filename, text string) Result {
	res := Result{Source: filename}
	code, ok := d.ParseInvoiceCode(filename)
	if !ok {
		res.Errors = append(res.Errors, FieldError{
			Field:   FieldInvoiceCode,
			Message: "no invoice code found in filename",
		})
		return res
	}
	res.InvoiceCode = code

	if raw, ok := d.FindDate(text); ok {
		res.RawDate = raw
		res.Date, _ = normalize.FilenameDay(raw)
	}
	if res.Date == "" {
		res.Errors = append(res.Errors, FieldError{
			Field:   FieldDate,
			Message: fmt.Sprintf("date not found in document (raw: %q)", res.RawDate),
		})
	}
	if name, ok := d.FindCustomer(textscan.Split(text)); ok {
		res.Customer = name
	} else {
		res.Errors = append(res.Errors, FieldError{Field: FieldCustomer, Message: "customer name not found in document"})
	}
	if order, ok := d.FindOrder(text); ok {
		res.Order = order
	} else {
		res.Errors = append(res.Errors, FieldError{Field: FieldOrder, Message: "order number not found in document"})
	}

	if len(res.Errors) == 0 {
		res.Filename = BuildName(res.Date, res.Customer, res.Order, res.InvoiceCode)
	}
	return res
}

// BuildName joins sanitized parts into dd.mm_Name_Order_Code.pdf. The code is
// used verbatim.
func BuildName(day, customer, order, code string) string {
	return strings.Join([]string{SafePart(day), SafePart(customer), SafePart(order), code}, "_") + Extension
}

// SafePart replaces characters outside [A-Za-z0-9._ -] with spaces, collapses
// whitespace and joins the words with underscores.
func SafePart(part string) string {
	cleaned := unsafeCharsRe.ReplaceAllString(strings.TrimSpace(part), " ")
	return strings.Join(strings.Fields(cleaned), "_")
}

// LooksLikeName rejects contact details, address or payment boilerplate, long
// digit runs and lines without letters.
func LooksLikeName(line string) bool {
	switch {
	case line == "":
		return false
	case contactRe.MatchString(line):
		return false
	case boilerplateRe.MatchString(line):
		return false
	case sixDigitsRe.MatchString(line):
		return false
	}
	return letterRe.MatchString(line)
}

// nearSalutation checks the lines around a formal salutation, preceding line first.
func nearSalutation(lines textscan.Lines) (string, bool) {
	for i := 0; i < lines.Len(); i++ {
		if !salutationRe.MatchString(lines.At(i)) {
			continue
		}
		for _, j := range []int{i - 1, i + 1} {
			if j < 0 || j >= lines.Len() {
				continue
			}
			if cand := lines.At(j); LooksLikeName(cand) {
				return strings.TrimSpace(cand), true
			}
		}
	}
	return "", false
}

// beforeGreeting takes the line preceding the last "Dear Sir" or "Dear Madam".
func beforeGreeting(lines textscan.Lines) (string, bool) {
	found := ""
	for i := 1; i < lines.Len(); i++ {
		line := lines.At(i)
		if !strings.Contains(line, "Dear Sir") && !strings.Contains(line, "Dear Madam") {
			continue
		}
		if prev := lines.At(i - 1); LooksLikeName(prev) {
			found = prev
		}
	}
	return found, found != ""
}

// companyLine takes the first short line carrying a company suffix.
func companyLine(lines textscan.Lines) (string, bool) {
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		if utf8.RuneCountInString(line) > maxCompanyLineRunes || fiveDigitsRe.MatchString(line) {
			continue
		}
		if companySuffixRe.MatchString(line) {
			return strings.TrimSpace(line), true
		}
	}
	return "", false
}
