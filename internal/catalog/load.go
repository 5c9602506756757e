package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/pos/internal/domain"
)

// fileProduct — запись каталога во внешнем файле. Цена хранится строкой,
// чтобы не терять точность при разборе.
type fileProduct struct {
	ID         int64  `yaml:"id"`
	Name       string `yaml:"name"`
	Price      string `yaml:"price"`
	Category   string `yaml:"category"`
	Stock      int    `yaml:"stock"`
	Glyph      string `yaml:"glyph"`
	Popularity int    `yaml:"popularity"`
}

type fileCatalog struct {
	Products []fileProduct `yaml:"products"`
}

// FromConfig возвращает встроенный каталог, если путь пуст, иначе читает файл.
func FromConfig(path string) (domain.Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Seed(), nil
	}
	return Load(path)
}

// Load читает каталог из YAML или JSON файла (JSON является подмножеством YAML).
func Load(path string) (domain.Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("read catalog file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml", ".json":
	default:
		return domain.Catalog{}, fmt.Errorf("unsupported catalog file extension %q", ext)
	}

	return Parse(raw)
}

// Parse разбирает содержимое файла каталога.
func Parse(raw []byte) (domain.Catalog, error) {
	var doc fileCatalog
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return domain.Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	if len(doc.Products) == 0 {
		return domain.Catalog{}, fmt.Errorf("catalog has no products")
	}

	products := make([]domain.Product, 0, len(doc.Products))
	for i, fp := range doc.Products {
		amount, err := decimal.NewFromString(strings.TrimSpace(fp.Price))
		if err != nil {
			return domain.Catalog{}, fmt.Errorf("products[%d].price: %w", i, err)
		}
		category, err := domain.ParseCategory(fp.Category)
		if err != nil || category == domain.CategoryAll {
			return domain.Catalog{}, fmt.Errorf("products[%d].category: %w", i, domain.ErrUnknownCategory)
		}
		products = append(products, domain.Product{
			ID:         domain.ProductID(fp.ID),
			Name:       strings.TrimSpace(fp.Name),
			Price:      amount,
			Category:   category,
			Stock:      fp.Stock,
			Glyph:      fp.Glyph,
			Popularity: fp.Popularity,
		})
	}

	return domain.NewCatalog(products)
}
