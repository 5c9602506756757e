package catalog

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

func price(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}

// seedProducts — фиксированный набор товаров, которым касса заполняется при старте.
var seedProducts = []domain.Product{
	{ID: 1, Name: "iPhone 14 Pro", Price: price("999.00"), Category: domain.CategoryElectronics, Stock: 15, Glyph: "📱", Popularity: 98},
	{ID: 2, Name: "MacBook Air M2", Price: price("1199.00"), Category: domain.CategoryElectronics, Stock: 8, Glyph: "💻", Popularity: 91},
	{ID: 3, Name: "AirPods Pro", Price: price("249.00"), Category: domain.CategoryAccessories, Stock: 32, Glyph: "🎧", Popularity: 95},
	{ID: 4, Name: "Apple Watch Series 8", Price: price("399.00"), Category: domain.CategoryElectronics, Stock: 12, Glyph: "⌚", Popularity: 87},
	{ID: 5, Name: "USB-C Charger", Price: price("19.99"), Category: domain.CategoryAccessories, Stock: 120, Glyph: "🔌", Popularity: 76},
	{ID: 6, Name: "Leather Phone Case", Price: price("49.00"), Category: domain.CategoryAccessories, Stock: 45, Glyph: "📦", Popularity: 64},
	{ID: 7, Name: "Cotton T-Shirt", Price: price("24.50"), Category: domain.CategoryClothing, Stock: 60, Glyph: "👕", Popularity: 72},
	{ID: 8, Name: "Denim Jacket", Price: price("89.90"), Category: domain.CategoryClothing, Stock: 18, Glyph: "🧥", Popularity: 58},
	{ID: 9, Name: "Ceramic Mug", Price: price("12.00"), Category: domain.CategoryHome, Stock: 75, Glyph: "☕", Popularity: 49},
	{ID: 10, Name: "Desk Lamp", Price: price("34.99"), Category: domain.CategoryHome, Stock: 22, Glyph: "💡", Popularity: 53},
	{ID: 11, Name: "Espresso Beans 1kg", Price: price("21.75"), Category: domain.CategoryFood, Stock: 40, Glyph: "🫘", Popularity: 67},
	{ID: 12, Name: "Dark Chocolate Bar", Price: price("3.49"), Category: domain.CategoryFood, Stock: 200, Glyph: "🍫", Popularity: 81},
}

// Seed возвращает встроенный каталог кассы.
func Seed() domain.Catalog {
	catalog, err := domain.NewCatalog(seedProducts)
	if err != nil {
		panic("catalog: invalid seed data: " + err.Error())
	}
	return catalog
}
