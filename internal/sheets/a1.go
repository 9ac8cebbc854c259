package sheets

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	plainTabPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	cellRefPattern  = regexp.MustCompile(`(?i)^[a-z]{1,3}[0-9]+$`)
	cellPattern     = regexp.MustCompile(`^([A-Za-z]*)([0-9]*)$`)
)

// GridRange is a parsed A1 range. Zero columns or rows mean unbounded.
type GridRange struct {
	Tab      string
	StartCol int
	StartRow int
	EndCol   int
	EndRow   int
}

// ColumnName converts a 1-based column number to its letter name
// (1 -> A, 26 -> Z, 27 -> AA, 52 -> AZ, 53 -> BA).
func ColumnName(n int) string {
	if n <= 0 {
		return ""
	}
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

// ColumnNumber is the inverse of ColumnName.
func ColumnNumber(name string) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("empty column name")
	}
	n := 0
	for _, r := range strings.ToUpper(name) {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("invalid column name %q", name)
		}
		n = n*26 + int(r-'A'+1)
	}
	return n, nil
}

// QuoteTab quotes a tab name for use in a range when it is not a plain
// identifier or could be read as a cell reference.
func QuoteTab(tab string) string {
	if plainTabPattern.MatchString(tab) && !cellRefPattern.MatchString(tab) {
		return tab
	}
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

// HeaderRange addresses the first width cells of row 1.
func HeaderRange(tab string, width int) string {
	if width < 1 {
		width = 1
	}
	return fmt.Sprintf("%s!A1:%s1", QuoteTab(tab), ColumnName(width))
}

// HeaderRow addresses all of row 1.
func HeaderRow(tab string) string {
	return QuoteTab(tab) + "!1:1"
}

// ColumnRange addresses a whole column.
func ColumnRange(tab string, col int) string {
	name := ColumnName(col)
	return fmt.Sprintf("%s!%s:%s", QuoteTab(tab), name, name)
}

// TabFromRange returns the unquoted tab name of a range such as "Sheet1!A:Z".
// A range without '!' is taken to be a tab name.
func TabFromRange(rng string) string {
	tab, _ := splitRange(rng)
	return tab
}

// ParseRange parses an A1 range.
func ParseRange(rng string) (GridRange, error) {
	tab, cells := splitRange(rng)
	if tab == "" {
		return GridRange{}, fmt.Errorf("range %q has no tab name", rng)
	}
	g := GridRange{Tab: tab}
	if cells == "" {
		return g, nil
	}

	start, end, hasEnd := strings.Cut(cells, ":")
	var err error
	if g.StartCol, g.StartRow, err = parseCell(start); err != nil {
		return GridRange{}, fmt.Errorf("invalid range %q: %w", rng, err)
	}
	if !hasEnd {
		g.EndCol, g.EndRow = g.StartCol, g.StartRow
		return g, nil
	}
	if g.EndCol, g.EndRow, err = parseCell(end); err != nil {
		return GridRange{}, fmt.Errorf("invalid range %q: %w", rng, err)
	}
	return g, nil
}

func parseCell(s string) (col, row int, err error) {
	m := cellPattern.FindStringSubmatch(s)
	if m == nil || s == "" {
		return 0, 0, fmt.Errorf("invalid cell %q", s)
	}
	if m[1] != "" {
		if col, err = ColumnNumber(m[1]); err != nil {
			return 0, 0, err
		}
	}
	if m[2] != "" {
		if row, err = strconv.Atoi(m[2]); err != nil {
			return 0, 0, err
		}
	}
	return col, row, nil
}

func splitRange(rng string) (tab, cells string) {
	rng = strings.TrimSpace(rng)
	if strings.HasPrefix(rng, "'") {
		var b strings.Builder
		for i := 1; i < len(rng); i++ {
			if rng[i] == '\'' {
				if i+1 < len(rng) && rng[i+1] == '\'' {
					b.WriteByte('\'')
					i++
					continue
				}
				rest := rng[i+1:]
				return b.String(), strings.TrimPrefix(rest, "!")
			}
			b.WriteByte(rng[i])
		}
		return b.String(), ""
	}
	if i := strings.LastIndex(rng, "!"); i >= 0 {
		return rng[:i], rng[i+1:]
	}
	return rng, ""
}
