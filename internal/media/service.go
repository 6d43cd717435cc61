package media

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/nellyolofsson/wt2/internal/apperr"
	"github.com/nellyolofsson/wt2/internal/document/repository"
	"github.com/nellyolofsson/wt2/internal/document/service"
	"github.com/nellyolofsson/wt2/internal/store"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

var errBlankCountry = errors.New("country must not be blank")

// Service is the document service of titles plus the catalog aggregations.
type Service struct {
	*service.DocumentService
	repo *repository.Repository
}

// NewService builds the title service on st.
func NewService(st store.Store) *Service {
	repo := repository.New(TitleSchema, st)
	return &Service{DocumentService: service.New(repo), repo: repo}
}

// CountryBreakdown counts the titles listing country per media type. The
// result holds at most one row.
func (s *Service) CountryBreakdown(ctx context.Context, country string) ([]CountryBreakdown, error) {
	country, err := normalizeCountry(country)
	if err != nil {
		return nil, err
	}
	out := []CountryBreakdown{}
	if err := s.repo.Aggregate(ctx, CountryBreakdownPipeline(country), &out); err != nil {
		return nil, service.HandleError(err, "Failed to get documents.")
	}
	for i := range out {
		sort.SliceStable(out[i].MediaTypes, func(a, b int) bool {
			return out[i].MediaTypes[a].Type < out[i].MediaTypes[b].Type
		})
	}
	return out, nil
}

// RatingBreakdown counts the titles listing country per type and rating,
// ordered by type then rating.
func (s *Service) RatingBreakdown(ctx context.Context, country string) ([]RatingCount, error) {
	country, err := normalizeCountry(country)
	if err != nil {
		return nil, err
	}
	var rows []ratingRow
	if err := s.repo.Aggregate(ctx, RatingBreakdownPipeline(country), &rows); err != nil {
		return nil, service.HandleError(err, "Failed to get documents.")
	}
	out := make([]RatingCount, 0, len(rows))
	for _, r := range rows {
		out = append(out, RatingCount{Type: r.ID.Type, Rating: r.ID.Rating, Count: r.Count})
	}
	return out, nil
}

// Countries lists every country named by some title, split out of the
// comma separated country field, without duplicates and in alphabetical
// order.
func (s *Service) Countries(ctx context.Context) ([]string, error) {
	vals, err := s.repo.Distinct(ctx, FieldCountry, nil)
	if err != nil {
		return nil, service.HandleError(err, "Failed to get documents.")
	}
	seen := map[string]bool{}
	out := []string{}
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		for _, c := range strings.Split(str, ",") {
			c = strings.TrimSpace(c)
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	collate.New(language.English).SortStrings(out)
	return out, nil
}

func normalizeCountry(country string) (string, error) {
	country = strings.TrimSpace(country)
	if country == "" {
		return "", apperr.Validation(errBlankCountry)
	}
	return country, nil
}
