package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/maltedev/court-auction-scraper/internal/auction"
	"github.com/maltedev/court-auction-scraper/internal/browser"
	"github.com/maltedev/court-auction-scraper/internal/ratelimit"
)

// Page is the part of a browser tab the collector drives. *browser.Session
// implements it.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Evaluate(ctx context.Context, script string, args ...any) (any, error)
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	Exists(selector string) (bool, error)
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	DoubleClickAt(ctx context.Context, x, y float64) error
	Scroll(ctx context.Context, dy int) error
	Content() (string, error)
	// OnResponse must call fn once per response, serially and in arrival
	// order.
	OnResponse(fn func(browser.Response)) (cancel func())
}

type humanizer interface {
	Humanize(ctx context.Context) error
}

var _ Page = (*browser.Session)(nil)

const (
	searchURL  = "https://www.courtauction.go.kr/pgj/index.on?w2xPath=/pgj/ui/pgj100/PGJ151F00.xml"
	popularURL = "https://www.courtauction.go.kr/pgj/index.on?w2xPath=/pgj/ui/pgj100/PGJ155M00.xml"

	searchEndpoint = "searchControllerMain.on"
	listKey        = "dlt_srchResult"
)

// Form element ids of the detailed search page.
const (
	idLocationRadio    = "mf_wfm_mainFrame_rdo_rletCortLoc_input_1"
	idLocationRadioAlt = "mf_wfm_mainFrame_rdo_rletSrchChc_input_1"
	idRegion           = "mf_wfm_mainFrame_sbx_rletAdongSdS"
	idLargeClass       = "mf_wfm_mainFrame_sbx_rletLclLst"
	idMiddleClass      = "mf_wfm_mainFrame_sbx_rletMclLst"
	idSmallClass       = "mf_wfm_mainFrame_sbx_rletSclLst"
	selStartDate       = "#mf_wfm_mainFrame_cal_rletPerdStr_input"
	selEndDate         = "#mf_wfm_mainFrame_cal_rletPerdEnd_input"
	locationLabel      = "소재지"
)

// Profile describes one listing page of the site.
type Profile struct {
	Source       auction.SourceType
	URL          string
	SearchButton string
	Filters      bool
	// PageControl is a format with one %d for the page index; empty means
	// the list has a single page.
	PageControl string
	Grid        string
	Match       Match
}

func (p Profile) PageControlSelector(page int) string {
	if p.PageControl == "" {
		return ""
	}
	return fmt.Sprintf(p.PageControl, page)
}

func SearchProfile() Profile {
	return Profile{
		Source:       auction.SourceSearch,
		URL:          searchURL,
		SearchButton: "#mf_wfm_mainFrame_btn_gdsDtlSrch",
		Filters:      true,
		PageControl:  "#mf_wfm_mainFrame_pgl_gdsDtlSrchPage_page_%d",
		Grid:         "#mf_wfm_mainFrame_grd_gdsDtlSrchResult_body_table",
		Match:        DefaultMatch(),
	}
}

func PopularProfile() Profile {
	return Profile{
		Source:       auction.SourcePopular,
		URL:          popularURL,
		SearchButton: "#mf_wfm_mainFrame_btn_mjrtyItrtSrch",
		Grid:         `table[id*="grd_"]`,
		Match:        DefaultMatch(),
	}
}

func ProfileFor(source auction.SourceType) Profile {
	if source == auction.SourcePopular {
		return PopularProfile()
	}
	return SearchProfile()
}

// Window is a jittered settle delay.
type Window struct {
	Min time.Duration
	Max time.Duration
}

func (w Window) Pause(ctx context.Context) error {
	return ratelimit.Pause(ctx, w.Min, w.Max)
}

type Timing struct {
	Init    Window
	Cascade Window
	Fill    Window
	Page    Window
}

func boolResult(v any) bool {
	b, _ := v.(bool)
	return b
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
