package sync

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"canvas-grade-sync/internal/db"
	"canvas-grade-sync/internal/logger"
	"canvas-grade-sync/internal/model"

	"github.com/rs/zerolog"
)

// TermResolver maps a Canvas course's free-text term label onto a local
// term row, creating one when no (owner, season, year) match exists.
type TermResolver struct {
	repo db.Repository
	log  zerolog.Logger
}

func NewTermResolver(repo db.Repository) *TermResolver {
	return &TermResolver{
		repo: repo,
		log:  logger.Get(),
	}
}

var yearPattern = regexp.MustCompile(`20\d{2}`)

// ParseTermLabel extracts (season, year) from a label like
// "Spring 2025 Semester". Unrecognized or empty labels default to Fall
// of the current year.
func ParseTermLabel(label string) (string, int) {
	label = strings.TrimSpace(label)
	if label == "" {
		return model.SeasonFall, time.Now().Year()
	}

	year := time.Now().Year()
	if match := yearPattern.FindString(label); match != "" {
		year, _ = strconv.Atoi(match)
	}

	lower := strings.ToLower(label)
	season := model.SeasonFall
	switch {
	case strings.Contains(lower, "spring"), strings.Contains(lower, "spr"):
		season = model.SeasonSpring
	case strings.Contains(lower, "summer"), strings.Contains(lower, "sum"):
		season = model.SeasonSummer
	case strings.Contains(lower, "fall"), strings.Contains(lower, "autumn"), strings.Contains(lower, "fal"):
		season = model.SeasonFall
	case strings.Contains(lower, "winter"), strings.Contains(lower, "win"):
		season = model.SeasonWinter
	}

	return season, year
}

// ResolveOrCreate returns the id of the owner's term for (season, year),
// creating it when absent. Creation activates the new term and
// deactivates the owner's others inside one transaction.
func (r *TermResolver) ResolveOrCreate(ctx context.Context, ownerID int64, season string, year int) (int64, error) {
	existing, err := r.repo.FindTerm(ctx, ownerID, season, year)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, nil
	}

	term := &model.Term{
		Nickname:   season + " " + strconv.Itoa(year),
		Season:     season,
		Year:       year,
		SchoolName: "Canvas Import",
		Active:     true,
		OwnerID:    ownerID,
	}

	id, err := r.repo.CreateTermExclusive(ctx, term)
	if err != nil {
		return 0, err
	}

	r.log.Info().Int64("owner_id", ownerID).Str("season", season).Int("year", year).
		Int64("term_id", id).Msg("Created term from Canvas data")
	return id, nil
}
