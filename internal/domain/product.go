package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ProductID — идентификатор товара в каталоге.
type ProductID int64

// Category — категория товара из закрытого набора.
type Category string

const (
	// CategoryAll — служебное значение фильтра «все категории».
	CategoryAll         Category = "all"
	CategoryElectronics Category = "electronics"
	CategoryAccessories Category = "accessories"
	CategoryClothing    Category = "clothing"
	CategoryHome        Category = "home"
	CategoryFood        Category = "food"
)

// Categories возвращает закрытый набор категорий в порядке отображения.
func Categories() []Category {
	return []Category{
		CategoryElectronics,
		CategoryAccessories,
		CategoryClothing,
		CategoryHome,
		CategoryFood,
	}
}

// Valid сообщает, входит ли категория в закрытый набор (CategoryAll не входит).
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory разбирает категорию фильтра; пустая строка означает CategoryAll.
func ParseCategory(raw string) (Category, error) {
	value := Category(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" || value == CategoryAll {
		return CategoryAll, nil
	}
	if !value.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, raw)
	}
	return value, nil
}

// Product — неизменяемая позиция каталога.
type Product struct {
	ID         ProductID
	Name       string
	Price      decimal.Decimal
	Category   Category
	Stock      int
	Glyph      string
	Popularity int
}

// Validate проверяет инварианты товара и возвращает список замечаний.
func (p Product) Validate() []error {
	var errs []error

	if p.ID <= 0 {
		errs = append(errs, ErrProductIDInvalid)
	}
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if p.Price.IsNegative() {
		errs = append(errs, ErrProductPriceNegative)
	}
	if p.Stock < 0 {
		errs = append(errs, ErrProductStockNegative)
	}
	if !p.Category.Valid() {
		errs = append(errs, ErrUnknownCategory)
	}

	return errs
}

// Catalog — упорядоченный каталог товаров, доступный только для чтения.
type Catalog struct {
	products []Product
	index    map[ProductID]int
}

// NewCatalog проверяет товары и строит каталог. Порядок товаров сохраняется.
func NewCatalog(products []Product) (Catalog, error) {
	index := make(map[ProductID]int, len(products))
	items := make([]Product, 0, len(products))

	for i, p := range products {
		if errs := p.Validate(); len(errs) > 0 {
			return Catalog{}, fmt.Errorf("product[%d] id=%d: %w", i, p.ID, errs[0])
		}
		if _, exists := index[p.ID]; exists {
			return Catalog{}, fmt.Errorf("%w: %d", ErrDuplicateProduct, p.ID)
		}
		index[p.ID] = len(items)
		items = append(items, p)
	}

	return Catalog{products: items, index: index}, nil
}

// Product возвращает товар по идентификатору.
func (c Catalog) Product(id ProductID) (Product, bool) {
	pos, ok := c.index[id]
	if !ok {
		return Product{}, false
	}
	return c.products[pos], true
}

// Products возвращает копию всех товаров в порядке каталога.
func (c Catalog) Products() []Product {
	result := make([]Product, len(c.products))
	copy(result, c.products)
	return result
}

// Len возвращает количество товаров.
func (c Catalog) Len() int {
	return len(c.products)
}
