package structure

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Options tunes the layout heuristics. Zero values fall back to defaults.
type Options struct {
	// ColumnGapFraction is the minimum vertical whitespace gap, as a
	// fraction of page width, that splits the page into two columns.
	ColumnGapFraction float64
	// LeftMarginFraction is how far from the column's left edge, as a
	// fraction of column width, a token may sit and still count as a
	// question-number marker.
	LeftMarginFraction float64
	// HeaderBandFraction is the height of the band below a marker, as a
	// fraction of page height, scanned for a printed point value.
	HeaderBandFraction float64
}

// DefaultOptions returns the layout heuristics used in production.
func DefaultOptions() Options {
	return Options{
		ColumnGapFraction:  0.05,
		LeftMarginFraction: 0.18,
		HeaderBandFraction: 0.04,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ColumnGapFraction <= 0 {
		o.ColumnGapFraction = d.ColumnGapFraction
	}
	if o.LeftMarginFraction <= 0 {
		o.LeftMarginFraction = d.LeftMarginFraction
	}
	if o.HeaderBandFraction <= 0 {
		o.HeaderBandFraction = d.HeaderBandFraction
	}
	return o
}

// markerRe matches question-number markers at the left margin of a text
// block: "1.", "2)", "(3)", "4、", or a bare "5".
var markerRe = regexp.MustCompile(`^\(?([0-9]{1,3})\)?[.)、]?$`)

// pointsRe matches printed point annotations in a region header:
// "(10 points)", "(5 pts)", "(2.5分)", trailing "10分".
var pointsRe = regexp.MustCompile(`[（(]?\s*([0-9]+(?:\.[0-9]+)?)\s*(?:points?|pts?|分)\s*[）)]?`)

// Analyze segments a page into question regions in reading order:
// top-to-bottom within a column, left column before right. Pure function
// of the page; no network calls.
func Analyze(page Page, opts Options) []Region {
	opts = opts.withDefaults()

	columns := detectColumns(page, opts)

	var regions []Region
	for colIdx, col := range columns {
		regions = append(regions, segmentColumn(page, col, colIdx, opts)...)
	}
	return regions
}

// column is a vertical slice of the page with the tokens inside it.
type column struct {
	x0, x1 float64
	tokens []Token
}

// detectColumns splits the page at the widest vertical whitespace gap in
// the central band, when that gap exceeds the configured fraction of page
// width. Single- and dual-column layouts are supported.
func detectColumns(page Page, opts Options) []column {
	w := float64(page.Width)
	whole := column{x0: 0, x1: w, tokens: page.Tokens}
	if len(page.Tokens) == 0 {
		return []column{whole}
	}

	// Coverage intervals on the x axis from token boxes.
	type interval struct{ lo, hi float64 }
	intervals := make([]interval, 0, len(page.Tokens))
	for _, t := range page.Tokens {
		intervals = append(intervals, interval{t.Box.X, t.Box.Right()})
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i].lo < intervals[j].lo })

	merged := intervals[:1]
	for _, iv := range intervals[1:] {
		last := &merged[len(merged)-1]
		if iv.lo <= last.hi {
			if iv.hi > last.hi {
				last.hi = iv.hi
			}
			continue
		}
		merged = append(merged, iv)
	}

	// The widest uncovered gap whose center lies in the middle half of
	// the page is the column boundary candidate.
	bestGap, bestAt := 0.0, 0.0
	for i := 1; i < len(merged); i++ {
		gap := merged[i].lo - merged[i-1].hi
		center := (merged[i].lo + merged[i-1].hi) / 2
		if gap > bestGap && center > 0.25*w && center < 0.75*w {
			bestGap = gap
			bestAt = center
		}
	}

	if bestGap < opts.ColumnGapFraction*w {
		return []column{whole}
	}

	left := column{x0: 0, x1: bestAt}
	right := column{x0: bestAt, x1: w}
	for _, t := range page.Tokens {
		mid := t.Box.X + t.Box.W/2
		if mid < bestAt {
			left.tokens = append(left.tokens, t)
		} else {
			right.tokens = append(right.tokens, t)
		}
	}
	return []column{left, right}
}

// segmentColumn cuts one column into regions using question-number
// markers. The span between consecutive markers is one region; the last
// region extends to the column's bottom content bound. A column without
// markers yields a single whole-column region flagged low confidence.
func segmentColumn(page Page, col column, colIdx int, opts Options) []Region {
	tokens := append([]Token(nil), col.tokens...)
	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].Box.Y != tokens[j].Box.Y {
			return tokens[i].Box.Y < tokens[j].Box.Y
		}
		return tokens[i].Box.X < tokens[j].Box.X
	})

	marginLimit := col.x0 + opts.LeftMarginFraction*(col.x1-col.x0)

	type marker struct {
		number string
		box    Box
	}
	var markers []marker
	for _, t := range tokens {
		text := strings.TrimSpace(t.Text)
		m := markerRe.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if t.Box.X > marginLimit {
			continue
		}
		markers = append(markers, marker{number: m[1], box: t.Box})
	}

	contentBottom := float64(page.Height)
	if len(tokens) > 0 {
		contentBottom = 0
		for _, t := range tokens {
			if t.Box.Bottom() > contentBottom {
				contentBottom = t.Box.Bottom()
			}
		}
	}

	if len(markers) == 0 {
		// Degenerate input: grading proceeds on the whole column with
		// capped confidence instead of failing.
		return []Region{{
			ID:            fmt.Sprintf("c%d-r0", colIdx),
			Box:           Box{X: col.x0, Y: 0, W: col.x1 - col.x0, H: contentBottom},
			Column:        colIdx,
			LowConfidence: true,
		}}
	}

	regions := make([]Region, 0, len(markers))
	for i, mk := range markers {
		top := mk.box.Y
		bottom := contentBottom
		if i+1 < len(markers) {
			bottom = markers[i+1].box.Y
		}
		region := Region{
			ID:             fmt.Sprintf("c%d-r%d", colIdx, i),
			Box:            Box{X: col.x0, Y: top, W: col.x1 - col.x0, H: bottom - top},
			Column:         colIdx,
			QuestionNumber: mk.number,
		}

		if pts, ok := headerPoints(tokens, mk.box, float64(page.Height)*opts.HeaderBandFraction); ok {
			region.Points = pts
			region.HasPoints = true
		}
		regions = append(regions, region)
	}
	return regions
}

// headerPoints scans the tokens on the marker's header band for a printed
// point annotation. Absent annotations leave the rubric value in charge.
func headerPoints(tokens []Token, markerBox Box, band float64) (float64, bool) {
	top := markerBox.Y - band/2
	bottom := markerBox.Bottom() + band

	var header []string
	for _, t := range tokens {
		if t.Box.Y >= top && t.Box.Y <= bottom {
			header = append(header, t.Text)
		}
	}

	m := pointsRe.FindStringSubmatch(strings.Join(header, " "))
	if m == nil {
		return 0, false
	}
	pts, err := strconv.ParseFloat(m[1], 64)
	if err != nil || pts <= 0 {
		return 0, false
	}
	return pts, true
}
