package auction

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	titleAddressLimit = 50
	defaultUsage      = "물건"
	statusNew         = "신건"

	detailLinkBase = "https://www.courtauction.go.kr/pgj/index.on?w2xPath=/pgj/ui/pgj100/PGJ151F00.xml"
)

type categoryRule struct {
	category Category
	keywords []string
}

// Ordered: the first group with a matching keyword wins. Factory comes
// before apartment so that 아파트형공장 is not read as an apartment.
var categoryRules = []categoryRule{
	{CategoryFactory, []string{"아파트형공장", "지식산업센터", "공장"}},
	{CategoryApartment, []string{"아파트"}},
	{CategoryVilla, []string{"빌라", "다세대", "연립"}},
	{CategoryOfficetel, []string{"오피스텔"}},
	{CategoryHouse, []string{"단독", "다가구"}},
	{CategoryCommercial, []string{"상가", "근린", "점포"}},
}

// MapToRecord converts a captured item into its canonical record. It has no
// side effects; capturedOn only supplies the posting date.
func MapToRecord(item CapturedItem, source SourceType, capturedOn time.Time) Record {
	key := KeyOf(item)
	usage := item.Get(FieldUsage)
	address := AddressOf(item)
	failCount := parseCount(item.Get(FieldFailCount))

	rec := Record{
		SiteID:         fmt.Sprintf("%s_%s", source, key),
		SourceType:     source,
		Key:            key,
		CaseNumber:     item.Get(FieldCaseDisplay),
		CourtCode:      item.Get(FieldCourtCode),
		ItemSeq:        itemSeq(item),
		Title:          BuildTitle(usage, address),
		Address:        address,
		Usage:          usage,
		Category:       InferCategory(usage),
		Department:     joinNonEmpty(item.Get(FieldCourt), item.Get(FieldDepartment)),
		Status:         statusOf(item, failCount),
		FailCount:      failCount,
		Phone:          optional(item.Get(FieldPhone)),
		DetailLink:     DetailLink(item),
		MinimumPrice:   ParsePrice(item.Get(FieldMinPrice)),
		AppraisedPrice: ParsePrice(item.Get(FieldAppraisal)),
		DatePosted:     capturedOn.Format("2006-01-02"),
		AuctionDate:    ParseDate(item.Get(FieldAuctionDate)),
		ResultDate:     ParseDate(item.Get(FieldResultDate)),
		Note:           optional(item.Get(FieldRemarks)),
	}

	if n, ok := interestCount(item); ok {
		rec.InterestCount = &n
	}

	return rec
}

// AddressOf prefers the printed address and falls back to the road address,
// then to the administrative parts.
func AddressOf(item CapturedItem) string {
	if a := item.Get(FieldAddress); a != "" {
		return a
	}
	if a := item.Get(FieldRoadAddress); a != "" {
		return a
	}
	return joinNonEmpty(item.Get(FieldSido), item.Get(FieldSigu), item.Get(FieldBuilding))
}

// ParsePrice keeps only the digits of s. No digits means absent.
func ParsePrice(s string) *string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return nil
	}
	out := b.String()
	return &out
}

// ParseDate turns an 8-digit YYYYMMDD value into YYYY-MM-DD. Anything else
// is absent.
func ParseDate(s string) *string {
	s = strings.TrimSpace(s)
	if len(s) != 8 {
		return nil
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return nil
	}
	out := t.Format("2006-01-02")
	return &out
}

func InferCategory(usage string) Category {
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(usage, kw) {
				return rule.category
			}
		}
	}
	return CategoryRealEstate
}

// BuildTitle renders "[usage] address", cutting the address at 50 runes.
func BuildTitle(usage, address string) string {
	if usage == "" {
		usage = defaultUsage
	}
	if utf8.RuneCountInString(address) > titleAddressLimit {
		address = string([]rune(address)[:titleAddressLimit]) + "..."
	}
	return strings.TrimSpace(fmt.Sprintf("[%s] %s", usage, address))
}

// DetailLink builds the detail page URL, or "" when any identifier is
// missing from the raw item.
func DetailLink(item CapturedItem) string {
	saNo := item.Get(FieldCaseNo)
	boCd := item.Get(FieldCourtCode)
	seq := item.Get(FieldItemSeq)
	if saNo == "" || boCd == "" || seq == "" {
		return ""
	}

	return fmt.Sprintf("%s&saNo=%s&boCd=%s&maemulSer=%s",
		detailLinkBase, url.QueryEscape(saNo), url.QueryEscape(boCd), url.QueryEscape(seq))
}

func statusOf(item CapturedItem, failCount int) string {
	if failCount > 0 {
		return fmt.Sprintf("유찰 %d회", failCount)
	}
	if s := item.Get(FieldStatus); s != "" {
		return s
	}
	return statusNew
}

func interestCount(item CapturedItem) (int, bool) {
	for _, f := range []string{FieldInterestCount, FieldInquiryCount} {
		if v := item.Get(f); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func parseCount(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
