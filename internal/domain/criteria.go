package domain

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// SortKey задаёт порядок видимого списка товаров.
type SortKey string

const (
	// SortByPopularity — по убыванию популярности (по умолчанию).
	SortByPopularity SortKey = "popularity"
	// SortByName — лексикографически по названию без учёта регистра.
	SortByName SortKey = "name"
	// SortByPrice — по возрастанию цены.
	SortByPrice SortKey = "price"
)

// ParseSortKey разбирает ключ сортировки; пустая строка означает SortByPopularity.
func ParseSortKey(raw string) (SortKey, error) {
	switch key := SortKey(strings.ToLower(strings.TrimSpace(raw))); key {
	case "":
		return SortByPopularity, nil
	case SortByPopularity, SortByName, SortByPrice:
		return key, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSortKey, raw)
	}
}

// Criteria — временное состояние поиска, фильтра и сортировки.
// Не влияет ни на корзину, ни на каталог.
type Criteria struct {
	Search   string
	Category Category
	Sort     SortKey
}

// DefaultCriteria возвращает критерии без фильтров с сортировкой по популярности.
func DefaultCriteria() Criteria {
	return Criteria{Category: CategoryAll, Sort: SortByPopularity}
}

func (c Criteria) normalized() Criteria {
	if c.Category == "" {
		c.Category = CategoryAll
	}
	if c.Sort == "" {
		c.Sort = SortByPopularity
	}
	return c
}

// Matches сообщает, проходит ли товар поиск и фильтр по категории.
func (c Criteria) Matches(p Product) bool {
	c = c.normalized()
	if c.Category != CategoryAll && p.Category != c.Category {
		return false
	}
	term := strings.ToLower(strings.TrimSpace(c.Search))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Name), term)
}

// VisibleProducts фильтрует каталог по критериям и сортирует результат.
// Чистая функция: пересчитывается на каждый ввод. При равных ключах
// сохраняется порядок каталога. Пустой результат возвращается как пустой, но не nil срез.
func VisibleProducts(catalog Catalog, criteria Criteria) []Product {
	criteria = criteria.normalized()

	result := make([]Product, 0, catalog.Len())
	for _, p := range catalog.products {
		if criteria.Matches(p) {
			result = append(result, p)
		}
	}

	switch criteria.Sort {
	case SortByName:
		slices.SortStableFunc(result, func(a, b Product) int {
			return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		})
	case SortByPrice:
		slices.SortStableFunc(result, func(a, b Product) int {
			return a.Price.Cmp(b.Price)
		})
	default:
		slices.SortStableFunc(result, func(a, b Product) int {
			return cmp.Compare(b.Popularity, a.Popularity)
		})
	}

	return result
}
