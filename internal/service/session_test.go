package service

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragsearch/internal/model"
	appErr "github.com/xxxsen/ragsearch/internal/pkg/errors"
)

func TestSessionSetPreference(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr bool
		check   func(t *testing.T, p Preferences)
	}{
		{name: "search type", key: PrefSearchType, value: "Semantic", check: func(t *testing.T, p Preferences) {
			require.Equal(t, model.StrategySemantic, p.SearchType)
		}},
		{name: "search type auto clears", key: PrefSearchType, value: "auto", check: func(t *testing.T, p Preferences) {
			require.Empty(t, p.SearchType)
		}},
		{name: "search type unknown", key: PrefSearchType, value: "keyword", wantErr: true},
		{name: "text weight clamped", key: PrefTextWeight, value: "1.5", check: func(t *testing.T, p Preferences) {
			require.Equal(t, 1.0, *p.TextWeight)
		}},
		{name: "text weight not a number", key: PrefTextWeight, value: "heavy", wantErr: true},
		{name: "result count", key: PrefResultCount, value: "7", check: func(t *testing.T, p Preferences) {
			require.Equal(t, 7, p.ResultCount)
		}},
		{name: "result count raised to one", key: PrefResultCount, value: "-3", check: func(t *testing.T, p Preferences) {
			require.Equal(t, 1, p.ResultCount)
		}},
		{name: "unknown key", key: "language", value: "en", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession("")
			require.NoError(t, s.SetPreference(PrefSearchType, "hybrid"))
			err := s.SetPreference(tt.key, tt.value)
			if tt.wantErr {
				require.ErrorIs(t, err, appErr.ErrInvalid)
				return
			}
			require.NoError(t, err)
			tt.check(t, s.Preferences())
		})
	}
}

func TestSessionPreferencesAreCopied(t *testing.T) {
	s := NewSession("s1")
	require.NoError(t, s.SetPreference(PrefTextWeight, "0.4"))
	p := s.Preferences()
	*p.TextWeight = 0.9
	require.Equal(t, 0.4, *s.Preferences().TextWeight)

	require.NoError(t, s.SetPreference(PrefTextWeight, ""))
	require.Nil(t, s.Preferences().TextWeight)
}

func TestSessionHistoryKeepsLatestTen(t *testing.T) {
	s := NewSession("s1")
	for i := 0; i < 12; i++ {
		s.RecordQuery(fmt.Sprintf("q%d", i))
	}
	history := s.History()
	require.Len(t, history, 10)
	require.Equal(t, "q2", history[0])
	require.Equal(t, "q11", history[9])

	snap := s.Snapshot()
	require.Equal(t, "s1", snap.ID)
	require.Equal(t, []string{"q9", "q10", "q11"}, snap.RecentSearches)
	require.Equal(t, 10, snap.QueryCount)
}

func TestSessionConcurrentUse(t *testing.T) {
	s := NewSession("s1")
	const workers, perWorker = 8, 50

	var wg sync.WaitGroup
	for g := 0; g < workers; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				s.RecordQuery(fmt.Sprintf("w%d-%03d", g, i))
				_ = s.SetPreference(PrefTextWeight, fmt.Sprintf("0.%d", g))
				snap := s.Snapshot()
				if snap.QueryCount > 10 || len(snap.RecentSearches) > 3 {
					t.Errorf("snapshot out of bounds: %d queries, %d recent", snap.QueryCount, len(snap.RecentSearches))
				}
			}
		}(g)
	}
	wg.Wait()

	history := s.History()
	require.Len(t, history, 10)
	// queries from one worker keep their order
	last := map[string]string{}
	for _, q := range history {
		worker := strings.SplitN(q, "-", 2)[0]
		require.Greater(t, q, last[worker])
		last[worker] = q
	}
	require.NotNil(t, s.Preferences().TextWeight)
	require.Equal(t, 10, s.Snapshot().QueryCount)
}

func TestSessionStore(t *testing.T) {
	store := NewSessionStore(2, time.Hour)

	a, created := store.Get("a")
	require.True(t, created)
	require.Equal(t, "a", a.ID)
	again, created := store.Get("a")
	require.False(t, created)
	require.Same(t, a, again)

	anon, created := store.Get("")
	require.True(t, created)
	require.NotEmpty(t, anon.ID)

	// capacity 2: adding a third evicts the least recently used
	store.Get("c")
	require.Equal(t, 2, store.Len())
	_, created = store.Get("a")
	require.True(t, created)
}
