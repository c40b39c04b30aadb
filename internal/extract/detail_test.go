package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const detailHTML = `<html><body>
<h2>물건기본사항</h2>
<table>
  <tr>
    <th>사건번호</th>
    <td>2023타경12345</td>
    <th>물건번호</th>
    <td>1</td>
  </tr>
  <tr>
    <th>물건종류</th>
    <td>아파트</td>
    <th>감정평가액</th>
    <td>1,542,500,000원</td>
  </tr>
  <tr>
    <th>최저매각가격</th>
    <td>1,234,000,000원
      (123,400,000원)</td>
  </tr>
  <tr>
    <th>입찰방법</th>
    <td>기일입찰</td>
    <th>매각기일</th>
    <td>2024.04.10 10:00</td>
  </tr>
  <tr>
    <th>소재지</th>
    <td>서울특별시 강남구 역삼동 123-45 [집합건물 철근콘크리트구조 84.99㎡]</td>
  </tr>
  <tr>
    <th>물건비고</th>
    <td>일괄매각. 특별매각조건 있음</td>
  </tr>
</table>
<div>서울중앙지방법원 경매5계</div>
<span>조회수 : 1,204</span>
</body></html>`

func TestParseDetail(t *testing.T) {
	d, err := ParseDetail(detailHTML)
	require.NoError(t, err)

	assert.Equal(t, "2023타경12345", d.CaseNumber)
	assert.Equal(t, "1", d.ItemNumber)
	assert.Equal(t, "아파트", d.ItemType)
	assert.Equal(t, "1,542,500,000원", d.AppraisedPrice)
	assert.Equal(t, "1,234,000,000원", d.MinimumPrice)
	assert.Equal(t, "123,400,000원", d.Deposit)
	assert.Equal(t, "기일입찰", d.BiddingMethod)
	assert.Equal(t, "2024.04.10 10:00", d.AuctionDate)
	assert.True(t, strings.HasPrefix(d.Address, "서울특별시 강남구 역삼동"))
	assert.Equal(t, "일괄매각. 특별매각조건 있음", d.Note)
	assert.Equal(t, "서울중앙지방법원", d.Court)
	assert.Equal(t, "경매5계", d.Department)
	assert.Equal(t, "[집합건물 철근콘크리트구조 84.99㎡]", d.BuildingInfo)
	assert.Empty(t, d.LandInfo)
	require.NotNil(t, d.ViewCount)
	assert.Equal(t, 1204, *d.ViewCount)
}

func TestParseDetail_Empty(t *testing.T) {
	d, err := ParseDetail(`<html><body><p>검색 결과가 없습니다</p></body></html>`)
	require.NoError(t, err)

	assert.Empty(t, d.CaseNumber)
	assert.Nil(t, d.ViewCount)
	assert.True(t, d.Enrichment().IsEmpty())
}

func TestDetailEnrichment(t *testing.T) {
	t.Run("building info preferred over land info", func(t *testing.T) {
		d := &Detail{BuildingInfo: "[건물 1층]", LandInfo: "[토지 대 100㎡]", Note: "n"}
		e := d.Enrichment()
		require.NotNil(t, e.BuildingInfo)
		assert.Equal(t, "[건물 1층]", *e.BuildingInfo)
		require.NotNil(t, e.Note)
		assert.Nil(t, e.ThumbnailURL)
	})

	t.Run("land info as fallback", func(t *testing.T) {
		d := &Detail{LandInfo: "[토지 대 100㎡]"}
		e := d.Enrichment()
		require.NotNil(t, e.BuildingInfo)
		assert.Equal(t, "[토지 대 100㎡]", *e.BuildingInfo)
		assert.Nil(t, e.Note)
	})
}

func TestIsDetailView(t *testing.T) {
	assert.True(t, IsDetailView(detailHTML))
	assert.False(t, IsDetailView(`<table id="grid"><th>감정평가액</th><th>최저매각가격</th></table>`))
}

func TestTruncateNote(t *testing.T) {
	long := strings.Repeat("가", 250)
	html := `<table><tr><th>물건비고</th><td>` + long + `</td></tr></table>`

	d, err := ParseDetail(html)
	require.NoError(t, err)
	assert.Equal(t, noteLimit, len([]rune(d.Note)))
}
