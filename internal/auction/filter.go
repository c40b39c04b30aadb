package auction

import (
	"fmt"
	"strings"
	"time"
)

// Filter is the user-facing search criteria for the detailed search form.
type Filter struct {
	Region   string
	Category string
	Start    time.Time
	End      time.Time
}

// FormPath is the three-level property class cascade of the search form,
// given as visible option text fragments.
type FormPath struct {
	Large  string
	Middle string
	Small  string
}

var formPaths = map[string]FormPath{
	string(CategoryApartment):  {"건물", "주거용", "아파트"},
	string(CategoryVilla):      {"건물", "주거용", "다세대"},
	string(CategoryHouse):      {"건물", "주거용", "단독"},
	string(CategoryOfficetel):  {"건물", "주거용", "오피스텔"},
	string(CategoryCommercial): {"건물", "상업용", "근린"},
	string(CategoryFactory):    {"건물", "공업용", "공장"},
	"아파트":                      {"건물", "주거용", "아파트"},
	"빌라":                       {"건물", "주거용", "다세대"},
	"다세대":                      {"건물", "주거용", "다세대"},
	"오피스텔":                     {"건물", "주거용", "오피스텔"},
	"상가":                       {"건물", "상업용", "근린"},
}

// ResolveFormPath maps a category name to the form cascade. Unknown names
// are used as the small class under residential buildings.
func ResolveFormPath(category string) (FormPath, bool) {
	category = strings.TrimSpace(category)
	if category == "" {
		return FormPath{}, false
	}
	if p, ok := formPaths[strings.ToLower(category)]; ok {
		return p, true
	}
	return FormPath{Large: "건물", Middle: "주거용", Small: category}, true
}

// DefaultWindow is today through a week from today.
func DefaultWindow(now time.Time) (time.Time, time.Time) {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return day, day.AddDate(0, 0, 7)
}

func (f Filter) Validate() error {
	if !f.Start.IsZero() && !f.End.IsZero() && f.End.Before(f.Start) {
		return fmt.Errorf("end date %s is before start date %s",
			f.End.Format("2006-01-02"), f.Start.Format("2006-01-02"))
	}
	return nil
}

// ParseDay accepts YYYYMMDD or YYYY-MM-DD.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"20060102", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: want YYYYMMDD", s)
}
