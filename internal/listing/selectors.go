package listing

// Selectors locates listing fields in a results page. They track the site's
// markup and are expected to change; override them through configuration.
type Selectors struct {
	Card      string   `mapstructure:"card"`
	Title     []string `mapstructure:"title"`
	Link      string   `mapstructure:"link"`
	Price     []string `mapstructure:"price"`
	Specials  string   `mapstructure:"specials"`
	Address   string   `mapstructure:"address"`
	PageRange string   `mapstructure:"page_range"`
}

// DefaultSelectors returns selectors for the apartments.com placard layout.
func DefaultSelectors() Selectors {
	return Selectors{
		Card:      "article.placard",
		Title:     []string{"div.property-title", "p.property-title"},
		Link:      "a.property-link",
		Price:     []string{"p.property-pricing", "span.property-rents", "div.price-range"},
		Specials:  "p.property-specials",
		Address:   "div.property-address",
		PageRange: "span.pageRange",
	}
}

// withDefaults fills empty fields from DefaultSelectors.
func (s Selectors) withDefaults() Selectors {
	def := DefaultSelectors()
	if s.Card == "" {
		s.Card = def.Card
	}
	if len(s.Title) == 0 {
		s.Title = def.Title
	}
	if s.Link == "" {
		s.Link = def.Link
	}
	if len(s.Price) == 0 {
		s.Price = def.Price
	}
	if s.Specials == "" {
		s.Specials = def.Specials
	}
	if s.Address == "" {
		s.Address = def.Address
	}
	if s.PageRange == "" {
		s.PageRange = def.PageRange
	}
	return s
}
