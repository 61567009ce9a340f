package catalog

import (
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// ReferenceCurrency is the unit every catalog price is quoted in.
const ReferenceCurrency = "USDT"

type Volume struct {
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	FilePath    string `yaml:"file_path" json:"-"`
}

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Volumes     []Volume        `json:"volumes"`
}

// Scope is the number of volumes unlocked by buying the product.
func (p *Product) Scope() int {
	return len(p.Volumes)
}

// Volume returns the volume by its 1-based index.
func (p *Product) Volume(n int) (Volume, bool) {
	if n < 1 || n > len(p.Volumes) {
		return Volume{}, false
	}
	return p.Volumes[n-1], true
}

type Catalog struct {
	products map[int64]*Product
	order    []int64
}

type productFile struct {
	ID          int64    `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Price       string   `yaml:"price"`
	Volumes     []Volume `yaml:"volumes"`
}

type catalogFile struct {
	Products []productFile `yaml:"products"`
}

func New(products ...Product) (*Catalog, error) {
	c := &Catalog{products: make(map[int64]*Product, len(products))}
	for i := range products {
		p := products[i]
		if p.ID <= 0 {
			return nil, fmt.Errorf("product at index %d has invalid id %d", i, p.ID)
		}
		if _, dup := c.products[p.ID]; dup {
			return nil, fmt.Errorf("duplicate product id %d", p.ID)
		}
		if p.Name == "" {
			return nil, fmt.Errorf("product %d missing name", p.ID)
		}
		if !p.Price.IsPositive() {
			return nil, fmt.Errorf("product %d price must be positive, got %s", p.ID, p.Price)
		}
		if len(p.Volumes) == 0 {
			return nil, fmt.Errorf("product %d has no volumes", p.ID)
		}
		for j, v := range p.Volumes {
			if v.Title == "" || v.FilePath == "" {
				return nil, fmt.Errorf("product %d volume %d missing title or file_path", p.ID, j+1)
			}
		}
		c.products[p.ID] = &p
		c.order = append(c.order, p.ID)
	}
	sort.Slice(c.order, func(i, j int) bool { return c.order[i] < c.order[j] })
	return c, nil
}

// Load reads the product catalog from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", path, err)
	}

	products := make([]Product, 0, len(f.Products))
	for i, p := range f.Products {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, fmt.Errorf("product at index %d has invalid price %q: %w", i, p.Price, err)
		}
		products = append(products, Product{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Price:       price,
			Volumes:     p.Volumes,
		})
	}
	return New(products...)
}

// Default mirrors the single two-volume product the shop launched with.
func Default() *Catalog {
	c, _ := New(Product{
		ID:          1,
		Name:        "Эскортопедия. Полное издание",
		Description: "Полный гайд по сфере в двух томах",
		Price:       decimal.NewFromInt(200),
		Volumes: []Volume{
			{Title: "Том 1: Старт", Description: "Первое практическое руководство по работе", FilePath: "data/course1.pdf"},
			{Title: "Том 2: Продвинутый", Description: "Самая полная и подробная инструкция по работе", FilePath: "data/course2.pdf"},
		},
	})
	return c
}

func (c *Catalog) Product(id int64) (*Product, bool) {
	p, ok := c.products[id]
	return p, ok
}

// Products returns all products ordered by id.
func (c *Catalog) Products() []*Product {
	out := make([]*Product, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.products[id])
	}
	return out
}
