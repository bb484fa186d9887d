package sync

import (
	"context"
	"strconv"
	"testing"
	"time"

	"canvas-grade-sync/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTermLabel(t *testing.T) {
	currentYear := time.Now().Year()

	tests := []struct {
		label  string
		season string
		year   int
	}{
		{"Spring 2025 Semester", model.SeasonSpring, 2025},
		{"Fall 2024", model.SeasonFall, 2024},
		{"Autumn 2024", model.SeasonFall, 2024},
		{"Winter 2026", model.SeasonWinter, 2026},
		{"Summer Session 2025", model.SeasonSummer, 2025},
		{"SPR 2024", model.SeasonSpring, 2024},
		{"Sum 2023", model.SeasonSummer, 2023},
		{"Win Quarter 2025", model.SeasonWinter, 2025},
		{"Spring", model.SeasonSpring, currentYear},
		{"Term 2024", model.SeasonFall, 2024},
		{"", model.SeasonFall, currentYear},
		{"Unrecognized Label", model.SeasonFall, currentYear},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			season, year := ParseTermLabel(tt.label)
			assert.Equal(t, tt.season, season)
			assert.Equal(t, tt.year, year)
		})
	}
}

func TestResolveOrCreate_ReusesExistingTerm(t *testing.T) {
	repo := newFakeRepo()
	resolver := NewTermResolver(repo)

	first, err := resolver.ResolveOrCreate(context.Background(), 1, model.SeasonSpring, 2025)
	require.NoError(t, err)

	second, err := resolver.ResolveOrCreate(context.Background(), 1, model.SeasonSpring, 2025)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, repo.terms, 1)
	assert.Equal(t, "Spring "+strconv.Itoa(2025), repo.terms[0].Nickname)
}

func TestResolveOrCreate_SingleActiveTerm(t *testing.T) {
	repo := newFakeRepo()
	resolver := NewTermResolver(repo)

	_, err := resolver.ResolveOrCreate(context.Background(), 1, model.SeasonFall, 2024)
	require.NoError(t, err)
	_, err = resolver.ResolveOrCreate(context.Background(), 1, model.SeasonSpring, 2025)
	require.NoError(t, err)

	active := 0
	for _, term := range repo.terms {
		if term.Active {
			active++
			assert.Equal(t, model.SeasonSpring, term.Season)
		}
	}
	assert.Equal(t, 1, active)
}

func TestResolveOrCreate_ScopedPerOwner(t *testing.T) {
	repo := newFakeRepo()
	resolver := NewTermResolver(repo)

	first, err := resolver.ResolveOrCreate(context.Background(), 1, model.SeasonFall, 2024)
	require.NoError(t, err)

	other, err := resolver.ResolveOrCreate(context.Background(), 2, model.SeasonFall, 2024)
	require.NoError(t, err)

	assert.NotEqual(t, first, other)
	assert.Len(t, repo.terms, 2)
}
