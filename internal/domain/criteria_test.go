package domain_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

func visibleIDs(products []domain.Product) []domain.ProductID {
	ids := make([]domain.ProductID, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestVisibleProducts_DefaultSortsByPopularityStable(t *testing.T) {
	catalog := testCatalog(t)

	got := domain.VisibleProducts(catalog, domain.DefaultCriteria())

	// B и Coffee Beans имеют одинаковую популярность: порядок каталога сохраняется.
	assert.Equal(t, []domain.ProductID{3, 4, 2, 5, 1}, visibleIDs(got))
}

func TestVisibleProducts_SearchIPhone(t *testing.T) {
	catalog := testCatalog(t)

	got := domain.VisibleProducts(catalog, domain.Criteria{Search: "iPhone", Category: domain.CategoryAll})

	require.Len(t, got, 1)
	assert.Equal(t, "iPhone 14 Pro", got[0].Name)
}

func TestVisibleProducts_SearchIsCaseInsensitive(t *testing.T) {
	catalog := testCatalog(t)

	got := domain.VisibleProducts(catalog, domain.Criteria{Search: "  PRO "})

	assert.Equal(t, []domain.ProductID{3, 4}, visibleIDs(got))
}

func TestVisibleProducts_CategoryAndSearchCompose(t *testing.T) {
	catalog := testCatalog(t)

	got := domain.VisibleProducts(catalog, domain.Criteria{Search: "pro", Category: domain.CategoryAccessories})

	assert.Equal(t, []domain.ProductID{4}, visibleIDs(got))
}

func TestVisibleProducts_SortKeys(t *testing.T) {
	catalog := testCatalog(t)

	byName := domain.VisibleProducts(catalog, domain.Criteria{Sort: domain.SortByName})
	assert.Equal(t, []domain.ProductID{1, 4, 2, 5, 3}, visibleIDs(byName))

	byPrice := domain.VisibleProducts(catalog, domain.Criteria{Sort: domain.SortByPrice})
	assert.Equal(t, []domain.ProductID{1, 5, 2, 4, 3}, visibleIDs(byPrice))
}

func TestVisibleProducts_PopularityExtremes(t *testing.T) {
	catalog, err := domain.NewCatalog([]domain.Product{
		{ID: 1, Name: "low", Category: domain.CategoryHome, Popularity: math.MinInt + 1},
		{ID: 2, Name: "high", Category: domain.CategoryHome, Popularity: math.MaxInt},
		{ID: 3, Name: "mid", Category: domain.CategoryHome, Popularity: 0},
	})
	require.NoError(t, err)

	got := domain.VisibleProducts(catalog, domain.DefaultCriteria())
	assert.Equal(t, []domain.ProductID{2, 3, 1}, visibleIDs(got))
}

func TestVisibleProducts_EmptyResultIsNotNil(t *testing.T) {
	catalog := testCatalog(t)

	got := domain.VisibleProducts(catalog, domain.Criteria{Search: "no such product"})

	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestParseSortKey(t *testing.T) {
	got, err := domain.ParseSortKey("")
	require.NoError(t, err)
	assert.Equal(t, domain.SortByPopularity, got)

	got, err = domain.ParseSortKey("Price")
	require.NoError(t, err)
	assert.Equal(t, domain.SortByPrice, got)

	_, err = domain.ParseSortKey("rating")
	assert.ErrorIs(t, err, domain.ErrUnknownSortKey)
}
