// Package auction holds the court auction domain model and the pure
// transformations from captured list items to stored records.
package auction

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type SourceType string

const (
	// SourceSearch is the detailed property search list.
	SourceSearch SourceType = "auction"
	// SourcePopular is the most-watched items list.
	SourcePopular SourceType = "popular"
)

func ParseSourceType(s string) (SourceType, error) {
	switch SourceType(strings.ToLower(strings.TrimSpace(s))) {
	case "", SourceSearch, "search":
		return SourceSearch, nil
	case SourcePopular:
		return SourcePopular, nil
	default:
		return "", fmt.Errorf("unknown source type %q", s)
	}
}

type Category string

const (
	CategoryFactory    Category = "factory"
	CategoryApartment  Category = "apartment"
	CategoryVilla      Category = "villa"
	CategoryOfficetel  Category = "officetel"
	CategoryHouse      Category = "house"
	CategoryCommercial Category = "commercial"
	CategoryRealEstate Category = "real_estate"
)

// Raw field names of a list item as returned by the search endpoint.
const (
	FieldCaseDisplay   = "srnSaNo"
	FieldCaseNo        = "saNo"
	FieldCourtCode     = "boCd"
	FieldItemSeq       = "maemulSer"
	FieldCourt         = "jiwonNm"
	FieldDepartment    = "jpDeptNm"
	FieldUsage         = "dspslUsgNm"
	FieldAddress       = "printSt"
	FieldRoadAddress   = "bgPlaceRdAllAddr"
	FieldSido          = "hjguSido"
	FieldSigu          = "hjguSigu"
	FieldBuilding      = "buldNm"
	FieldMinPrice      = "minmaePrice"
	FieldAppraisal     = "gamevalAmt"
	FieldAuctionDate   = "maeGiil"
	FieldResultDate    = "maegyuljGiil"
	FieldStatus        = "maeStsNm"
	FieldFailCount     = "yuchalCnt"
	FieldInterestCount = "gwansMulRegCnt"
	FieldInquiryCount  = "inqCnt"
	FieldRemarks       = "mulBigo"
	FieldPhone         = "tel"
)

// CapturedItem is one raw entry of a captured list payload. Values are
// strings or json.Number when decoded with UseNumber.
type CapturedItem map[string]any

// Get returns the field as a trimmed string, or "" when absent or null.
func (c CapturedItem) Get(field string) string {
	v, ok := c[field]
	if !ok || v == nil {
		return ""
	}

	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Has reports whether the field is present with a non-empty value.
func (c CapturedItem) Has(field string) bool {
	return c.Get(field) != ""
}

// CompositeKey identifies an auction item: case number plus item sequence.
type CompositeKey string

func KeyOf(item CapturedItem) CompositeKey {
	return CompositeKey(item.Get(FieldCaseNo) + "_" + itemSeq(item))
}

func itemSeq(item CapturedItem) string {
	if seq := item.Get(FieldItemSeq); seq != "" {
		return seq
	}
	return "1"
}

// Record is the canonical stored form of an auction item. Nil pointers mean
// the value was absent or failed to parse.
type Record struct {
	SiteID         string       `json:"site_id"`
	SourceType     SourceType   `json:"source_type"`
	Key            CompositeKey `json:"composite_key"`
	CaseNumber     string       `json:"case_number"`
	CourtCode      string       `json:"court_code"`
	ItemSeq        string       `json:"item_seq"`
	Title          string       `json:"title"`
	Address        string       `json:"address"`
	Usage          string       `json:"usage"`
	Category       Category     `json:"category"`
	Department     string       `json:"department"`
	Status         string       `json:"status"`
	FailCount      int          `json:"fail_count"`
	Phone          *string      `json:"phone,omitempty"`
	DetailLink     string       `json:"detail_link"`
	MinimumPrice   *string      `json:"minimum_price,omitempty"`
	AppraisedPrice *string      `json:"appraised_price,omitempty"`
	DatePosted     string       `json:"date_posted"`
	AuctionDate    *string      `json:"auction_date,omitempty"`
	ResultDate     *string      `json:"result_date,omitempty"`
	InterestCount  *int         `json:"interest_count,omitempty"`
	ThumbnailURL   *string      `json:"thumbnail_url,omitempty"`
	BuildingInfo   *string      `json:"building_info,omitempty"`
	Note           *string      `json:"note,omitempty"`
	ViewCount      *int         `json:"view_count,omitempty"`
}

// Enrichment is the partial update produced by the detail pass.
// Only non-nil fields are written.
type Enrichment struct {
	ThumbnailURL *string `json:"thumbnail_url,omitempty"`
	BuildingInfo *string `json:"building_info,omitempty"`
	Note         *string `json:"note,omitempty"`
	ViewCount    *int    `json:"view_count,omitempty"`
}

func (e Enrichment) IsEmpty() bool {
	return e.ThumbnailURL == nil && e.BuildingInfo == nil && e.Note == nil && e.ViewCount == nil
}

// Apply copies the present enrichment fields onto the record.
func (r *Record) Apply(e Enrichment) {
	if e.ThumbnailURL != nil {
		r.ThumbnailURL = e.ThumbnailURL
	}
	if e.BuildingInfo != nil {
		r.BuildingInfo = e.BuildingInfo
	}
	if e.Note != nil {
		r.Note = e.Note
	}
	if e.ViewCount != nil {
		r.ViewCount = e.ViewCount
	}
}
