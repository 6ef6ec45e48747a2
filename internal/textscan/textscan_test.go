package textscan

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitDropsBlankLines(t *testing.T) {
	lines := Split("  first \n\n\nsecond\n   \nthird  ")
	require.Equal(t, 3, lines.Len())
	assert.Equal(t, "first", lines.At(0))
	assert.Equal(t, "third", lines.At(2))
	assert.Equal(t, "", lines.At(3))
	assert.Equal(t, "", lines.At(-1))
	assert.Equal(t, 0, Split("").Len())
}

func TestNextAfterUsesFirstLabel(t *testing.T) {
	lines := Split("Customer\n777\nCustomer\n888")
	m, ok := NextAfter(Equals("Customer"))(lines, 0)
	require.True(t, ok)
	assert.Equal(t, "777", m.Value)
	assert.Equal(t, 1, m.Index)

	_, ok = NextAfter(Equals("Customer"))(Split("Customer"), 0)
	assert.False(t, ok)
}

func TestPrevBeforeTriesEveryLabel(t *testing.T) {
	lines := Split("EUR\nNothing\nUSD\nCurrency\nCurrency")
	accept := Equals("USD", "EUR")
	m, ok := PrevBefore(Contains("Currency"), accept)(lines, 0)
	require.True(t, ok)
	assert.Equal(t, "USD", m.Value)

	_, ok = PrevBefore(Contains("Currency"), accept)(Split("Currency\nfoo"), 0)
	assert.False(t, ok)
}

func TestWithinAfterWindow(t *testing.T) {
	date := Capture(regexp.MustCompile(`\d{4}-\d{2}-\d{2}`))
	lines := Split("Due Date\na\nb\nc\n2026-02-01")
	m, ok := WithinAfter(Contains("Due Date"), 4, date)(lines, 0)
	require.True(t, ok)
	assert.Equal(t, "2026-02-01", m.Value)

	lines = Split("Due Date\na\nb\nc\nd\n2026-02-01")
	_, ok = WithinAfter(Contains("Due Date"), 4, date)(lines, 0)
	assert.False(t, ok)
}

func TestFirstOfOrder(t *testing.T) {
	first := Capture(regexp.MustCompile(`A(\d)`))
	second := Capture(regexp.MustCompile(`B(\d)`))
	m := FirstOf(first, nil, second)

	v, ok := m("B2 A1")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	v, ok = m("B2")
	require.True(t, ok)
	assert.Equal(t, "2", v)

	_, ok = m("none")
	assert.False(t, ok)
}

func TestScanAdapter(t *testing.T) {
	m := FirstOf(Scan(NextAfter(Equals("Date"))), Scan(NextAfter(Equals("Data"))))
	v, ok := m(Split("Data\n2026-03-04"))
	require.True(t, ok)
	assert.Equal(t, "2026-03-04", v)
}
