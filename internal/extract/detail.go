// Package extract reads auction detail pages into structured fields.
//
// Every field is described once in DetailFields: either a label cell whose
// neighbouring cell holds the value, or a pattern over the page text.
// Adding a field means adding a row, not a parser.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/court-auction-scraper/internal/auction"
)

const noteLimit = 200

type Detail struct {
	CaseNumber     string `json:"case_number,omitempty"`
	ItemNumber     string `json:"item_number,omitempty"`
	ItemType       string `json:"item_type,omitempty"`
	AppraisedPrice string `json:"appraised_price,omitempty"`
	MinimumPrice   string `json:"minimum_price,omitempty"`
	Deposit        string `json:"deposit,omitempty"`
	BiddingMethod  string `json:"bidding_method,omitempty"`
	AuctionDate    string `json:"auction_date,omitempty"`
	Address        string `json:"address,omitempty"`
	ClaimAmount    string `json:"claim_amount,omitempty"`
	Note           string `json:"note,omitempty"`
	Court          string `json:"court,omitempty"`
	Department     string `json:"department,omitempty"`
	BuildingInfo   string `json:"building_info,omitempty"`
	LandInfo       string `json:"land_info,omitempty"`
	ViewCount      *int   `json:"view_count,omitempty"`
}

type matchMode int

const (
	labelEquals matchMode = iota
	labelContains
	textPattern
)

// Field is one row of the extraction table.
type Field struct {
	Name    string
	Mode    matchMode
	Label   string
	Pattern *regexp.Regexp
	// Group selects the submatch for pattern fields; 0 is the whole match.
	Group int
	Set   func(d *Detail, v string)
}

var (
	wonPattern     = regexp.MustCompile(`[0-9,]+원`)
	depositPattern = regexp.MustCompile(`\(([0-9,]+)원\)`)
	courtPattern   = regexp.MustCompile(`([가-힣]+지방법원(?:\s[가-힣]+지원)?)`)
	deptPattern    = regexp.MustCompile(`경매\d+계`)
	buildPattern   = regexp.MustCompile(`\[집합건물[^\]]+\]|\[건물[^\]]+\]`)
	landPattern    = regexp.MustCompile(`\[토지[^\]]+\]`)
	viewPattern    = regexp.MustCompile(`조회수\s*[:：]?\s*([0-9,]+)`)
	spacePattern   = regexp.MustCompile(`\s+`)
)

var DetailFields = []Field{
	{Name: "case_number", Mode: labelEquals, Label: "사건번호", Set: func(d *Detail, v string) { d.CaseNumber = v }},
	{Name: "item_number", Mode: labelEquals, Label: "물건번호", Set: func(d *Detail, v string) { d.ItemNumber = v }},
	{Name: "item_type", Mode: labelEquals, Label: "물건종류", Set: func(d *Detail, v string) { d.ItemType = v }},
	{Name: "appraised_price", Mode: labelEquals, Label: "감정평가액", Set: func(d *Detail, v string) { d.AppraisedPrice = v }},
	{Name: "minimum_price", Mode: labelContains, Label: "최저매각가격", Set: func(d *Detail, v string) {
		if m := wonPattern.FindString(v); m != "" {
			d.MinimumPrice = m
		}
		if m := depositPattern.FindStringSubmatch(v); m != nil {
			d.Deposit = m[1] + "원"
		}
	}},
	{Name: "bidding_method", Mode: labelEquals, Label: "입찰방법", Set: func(d *Detail, v string) { d.BiddingMethod = v }},
	{Name: "auction_date", Mode: labelEquals, Label: "매각기일", Set: func(d *Detail, v string) { d.AuctionDate = v }},
	{Name: "address", Mode: labelContains, Label: "소재지", Set: func(d *Detail, v string) { d.Address = v }},
	{Name: "claim_amount", Mode: labelEquals, Label: "청구금액", Set: func(d *Detail, v string) { d.ClaimAmount = v }},
	{Name: "note", Mode: labelEquals, Label: "물건비고", Set: func(d *Detail, v string) { d.Note = truncate(v, noteLimit) }},
	{Name: "court", Mode: textPattern, Pattern: courtPattern, Group: 1, Set: func(d *Detail, v string) { d.Court = v }},
	{Name: "department", Mode: textPattern, Pattern: deptPattern, Set: func(d *Detail, v string) { d.Department = v }},
	{Name: "building_info", Mode: textPattern, Pattern: buildPattern, Set: func(d *Detail, v string) { d.BuildingInfo = v }},
	{Name: "land_info", Mode: textPattern, Pattern: landPattern, Set: func(d *Detail, v string) { d.LandInfo = v }},
	{Name: "view_count", Mode: textPattern, Pattern: viewPattern, Group: 1, Set: func(d *Detail, v string) {
		if n, err := strconv.Atoi(strings.ReplaceAll(v, ",", "")); err == nil {
			d.ViewCount = &n
		}
	}},
}

// detailMarkers appear only once an item's detail view has rendered. The
// price labels are not among them because the result grid headers use them.
var detailMarkers = []string{"물건기본사항", "입찰방법", "청구금액", "배당요구종기"}

// IsDetailView reports whether html looks like a rendered detail view.
func IsDetailView(html string) bool {
	for _, m := range detailMarkers {
		if strings.Contains(html, m) {
			return true
		}
	}
	return false
}

// ParseDetail applies DetailFields to a detail page. The first match for a
// field wins; fields that do not match stay empty.
func ParseDetail(html string) (*Detail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	cells := doc.Find("th, td, dt, dd")
	text := clean(doc.Find("body").Text())

	d := &Detail{}
	for _, f := range DetailFields {
		var value string
		switch f.Mode {
		case labelEquals, labelContains:
			value = labelValue(cells, f)
		case textPattern:
			value = patternValue(text, f)
		}
		if value != "" {
			f.Set(d, value)
		}
	}

	return d, nil
}

func labelValue(cells *goquery.Selection, f Field) string {
	var value string
	cells.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		label := clean(s.Text())
		hit := label == f.Label
		if f.Mode == labelContains {
			hit = strings.Contains(label, f.Label) && utf8.RuneCountInString(label) <= utf8.RuneCountInString(f.Label)+4
		}
		if !hit {
			return true
		}

		next := s.Next()
		if next.Length() == 0 {
			next = s.Parent().Next().Children().First()
		}
		value = clean(next.Text())
		return value == ""
	})
	return value
}

func patternValue(text string, f Field) string {
	m := f.Pattern.FindStringSubmatch(text)
	if m == nil || f.Group >= len(m) {
		return ""
	}
	return strings.TrimSpace(m[f.Group])
}

// Enrichment maps the fields the store keeps from a detail page.
func (d *Detail) Enrichment() auction.Enrichment {
	var e auction.Enrichment

	switch {
	case d.BuildingInfo != "":
		v := d.BuildingInfo
		e.BuildingInfo = &v
	case d.LandInfo != "":
		v := d.LandInfo
		e.BuildingInfo = &v
	}

	if d.Note != "" {
		v := d.Note
		e.Note = &v
	}

	if d.ViewCount != nil {
		v := *d.ViewCount
		e.ViewCount = &v
	}

	return e
}

func clean(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:limit]))
}
