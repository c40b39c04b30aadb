package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/court-auction-scraper/internal/auction"
)

func TestFilterNavigator_Open(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		page := newFakePage()
		nav := NewFilterNavigator(page, testProfile(), Timing{}, time.Second, discardLogger())

		require.NoError(t, nav.Open(context.Background()))
		assert.Equal(t, []string{"navigate " + searchURL, "wait #search"}, page.Calls())
	})

	t.Run("navigation fails", func(t *testing.T) {
		page := newFakePage()
		page.navErr = errors.New("net::ERR_CONNECTION_REFUSED")
		nav := NewFilterNavigator(page, testProfile(), Timing{}, time.Second, discardLogger())

		assert.ErrorIs(t, nav.Open(context.Background()), ErrFatal)
	})

	t.Run("search trigger never visible", func(t *testing.T) {
		page := newFakePage()
		page.visibleOK = false
		nav := NewFilterNavigator(page, testProfile(), Timing{}, time.Second, discardLogger())

		assert.ErrorIs(t, nav.Open(context.Background()), ErrFatal)
	})
}

func TestFilterNavigator_ApplyOrder(t *testing.T) {
	page := newFakePage()

	var selected []string
	page.evaluate = func(script string, arg any) (any, error) {
		if script == selectOptionJS {
			args := arg.([]any)
			selected = append(selected, args[0].(string)+"="+args[1].(string))
		}
		return true, nil
	}

	nav := NewFilterNavigator(page, testProfile(), Timing{}, time.Second, discardLogger())
	f := auction.Filter{
		Region:   "서울",
		Category: "apartment",
		Start:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
	}

	require.NoError(t, nav.Apply(context.Background(), f))

	path, ok := auction.ResolveFormPath("apartment")
	require.True(t, ok)
	assert.Equal(t, []string{
		idRegion + "=서울",
		idLargeClass + "=" + path.Large,
		idMiddleClass + "=" + path.Middle,
		idSmallClass + "=" + path.Small,
	}, selected)

	calls := page.Calls()
	assert.Equal(t, "fill "+selStartDate+" 20240301", calls[len(calls)-2])
	assert.Equal(t, "fill "+selEndDate+" 20240308", calls[len(calls)-1])
}

func TestFilterNavigator_MissingOptionContinues(t *testing.T) {
	page := newFakePage()
	page.evaluate = func(script string, arg any) (any, error) {
		return false, nil
	}

	nav := NewFilterNavigator(page, testProfile(), Timing{}, time.Second, discardLogger())
	err := nav.Apply(context.Background(), auction.Filter{Region: "없는지역"})

	require.NoError(t, err)
	assert.Equal(t, 2, page.countCalls("fill "))
}

func TestFilterNavigator_SelectOptionNotFound(t *testing.T) {
	page := newFakePage()
	page.evaluate = func(script string, arg any) (any, error) {
		return false, nil
	}

	nav := NewFilterNavigator(page, testProfile(), Timing{}, time.Second, discardLogger())
	err := nav.SelectOption(context.Background(), idRegion, "서울")

	assert.ErrorIs(t, err, errOptionNotFound)
}

func TestFilterNavigator_PopularSkipsForm(t *testing.T) {
	page := newFakePage()
	nav := NewFilterNavigator(page, PopularProfile(), Timing{}, time.Second, discardLogger())

	require.NoError(t, nav.Apply(context.Background(), auction.Filter{Region: "서울"}))
	assert.Empty(t, page.Calls())
}
