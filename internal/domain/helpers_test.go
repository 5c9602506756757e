package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// testCatalog: A за $10, B за $20, плюс несколько товаров для фильтров.
func testCatalog(t *testing.T) domain.Catalog {
	t.Helper()

	catalog, err := domain.NewCatalog([]domain.Product{
		{ID: 1, Name: "A", Price: decimal.NewFromInt(10), Category: domain.CategoryElectronics, Stock: 5, Popularity: 10},
		{ID: 2, Name: "B", Price: decimal.NewFromInt(20), Category: domain.CategoryClothing, Stock: 5, Popularity: 30},
		{ID: 3, Name: "iPhone 14 Pro", Price: decimal.RequireFromString("999.00"), Category: domain.CategoryElectronics, Stock: 3, Glyph: "📱", Popularity: 95},
		{ID: 4, Name: "AirPods Pro", Price: decimal.RequireFromString("249.00"), Category: domain.CategoryAccessories, Stock: 12, Glyph: "🎧", Popularity: 80},
		{ID: 5, Name: "Coffee Beans", Price: decimal.RequireFromString("14.50"), Category: domain.CategoryFood, Stock: 40, Glyph: "☕", Popularity: 30},
	})
	if err != nil {
		t.Fatalf("build catalog: %v", err)
	}
	return catalog
}

func mustProduct(t *testing.T, catalog domain.Catalog, id domain.ProductID) domain.Product {
	t.Helper()

	p, ok := catalog.Product(id)
	if !ok {
		t.Fatalf("product %d not in catalog", id)
	}
	return p
}
