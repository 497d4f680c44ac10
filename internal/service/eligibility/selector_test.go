package eligibility

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodtracker/internal/model"
	"foodtracker/pkg/util"
)

// memSource returns every row it holds, leaving all filtering to the selector.
type memSource struct {
	rows []model.Candidate
	err  error

	gotToday    time.Time
	gotDefaults model.UserSettings
}

func (m *memSource) ListCandidates(_ context.Context, today time.Time, defaults model.UserSettings) ([]model.Candidate, error) {
	m.gotToday = today
	m.gotDefaults = defaults
	return m.rows, m.err
}

var today = time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

func candidate(productID int64, k, days int) model.Candidate {
	return model.Candidate{
		Product:  model.Product{ID: productID, UserID: 1, Name: "Milk", ExpirationDate: today.AddDate(0, 0, k), IsActive: true},
		User:     model.User{ID: 1, Email: "u@x.com", IsActive: true},
		Settings: model.UserSettings{UserID: 1, NotificationDays: days, EmailEnabled: true},
	}
}

func TestSelect_WindowMembership(t *testing.T) {
	for _, n := range []int{0, 1, 3, 7} {
		src := &memSource{}
		for k := -3; k <= n+3; k++ {
			src.rows = append(src.rows, candidate(int64(100+k), k, n))
		}

		s := NewSelector(src, model.UserSettings{NotificationDays: 3}, nil)
		got, err := s.Select(context.Background(), today)
		require.NoError(t, err)

		seen := map[int64]int{}
		for _, c := range got {
			seen[c.Product.ID]++
		}
		for k := -3; k <= n+3; k++ {
			id := int64(100 + k)
			if k >= 0 && k <= n {
				assert.Equal(t, 1, seen[id], "n=%d k=%d should be selected exactly once", n, k)
			} else {
				assert.Zero(t, seen[id], "n=%d k=%d must not be selected", n, k)
			}
		}
	}
}

func forUser(c model.Candidate, userID int64) model.Candidate {
	c.Product.UserID = userID
	c.User.ID = userID
	c.Settings.UserID = userID
	return c
}

// 同一结果集里每行按自己用户的窗口判断
func TestSelect_WindowIsPerUser(t *testing.T) {
	const short, long = int64(1), int64(2)
	windows := map[int64]int{short: 1, long: 5}

	src := &memSource{}
	for userID, days := range windows {
		for k := 0; k <= 6; k++ {
			src.rows = append(src.rows, forUser(candidate(userID*100+int64(k), k, days), userID))
		}
	}

	s := NewSelector(src, model.UserSettings{NotificationDays: 3}, nil)
	got, err := s.Select(context.Background(), today)
	require.NoError(t, err)

	seen := map[int64]map[int]bool{short: {}, long: {}}
	for _, c := range got {
		require.Equal(t, c.User.ID, c.Product.UserID)
		k := int(c.Product.ExpirationDate.Sub(today).Hours() / 24)
		seen[c.User.ID][k] = true
	}

	for k := 0; k <= 6; k++ {
		assert.Equal(t, k <= 1, seen[short][k], "user with 1-day window, k=%d", k)
		assert.Equal(t, k <= 5, seen[long][k], "user with 5-day window, k=%d", k)
	}
	assert.Len(t, got, 2+6)
}

func TestSelect_ExcludesInactive(t *testing.T) {
	inactiveProduct := candidate(1, 1, 3)
	inactiveProduct.Product.IsActive = false
	inactiveUser := candidate(2, 1, 3)
	inactiveUser.User.IsActive = false
	active := candidate(3, 1, 3)

	s := NewSelector(&memSource{rows: []model.Candidate{inactiveProduct, inactiveUser, active}}, model.UserSettings{}, nil)
	got, err := s.Select(context.Background(), today)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].Product.ID)
}

func TestSelect_EmptyIsNil(t *testing.T) {
	s := NewSelector(&memSource{}, model.UserSettings{}, nil)
	got, err := s.Select(context.Background(), today)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSelect_PassesDateAndDefaults(t *testing.T) {
	src := &memSource{}
	defaults := model.UserSettings{NotificationDays: 5, EmailEnabled: true}
	s := NewSelector(src, defaults, nil)

	_, err := s.Select(context.Background(), today.Add(17*time.Hour+5*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, today, src.gotToday)
	assert.Equal(t, defaults, src.gotDefaults)
}

func TestSelect_StoreErrorIsDataAccess(t *testing.T) {
	s := NewSelector(&memSource{err: errors.New("connection reset")}, model.UserSettings{}, nil)
	got, err := s.Select(context.Background(), today)
	assert.Nil(t, got)
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrDataAccess)
	assert.Equal(t, util.KindDataAccess, util.ClassifyError(err))
}
