package fixture

import (
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"quoteengine/pkg/quote/domain/model"
	"quoteengine/pkg/quote/domain/service"
)

// namespace derives stable ids from the human readable names used in
// scenario files, so a name always maps to the same id.
var namespace = uuid.MustParse("6f1c1f5e-8a47-4c1e-9d0b-2b7d9e3a5c10")

// Scenario is an offline ranking setup: line items, supplier offers and
// performance, read from YAML.
type Scenario struct {
	Weights     *WeightsYAML      `yaml:"weights,omitempty"`
	Bonus       *BonusYAML        `yaml:"bonus,omitempty"`
	Items       []ItemYAML        `yaml:"items"`
	Offers      []OfferYAML       `yaml:"offers"`
	Performance []PerformanceYAML `yaml:"performance"`
}

type WeightsYAML struct {
	Price        int `yaml:"price"`
	Rating       int `yaml:"rating"`
	DeliveryTime int `yaml:"delivery_time"`
	Reliability  int `yaml:"reliability"`
}

type BonusYAML struct {
	StepPercent float64 `yaml:"step_percent"`
	CapPercent  float64 `yaml:"cap_percent"`
}

type ItemYAML struct {
	Name     string `yaml:"name"`
	Unit     string `yaml:"unit"`
	Quantity int    `yaml:"quantity"`
}

type OfferYAML struct {
	Supplier     string `yaml:"supplier"`
	Unit         string `yaml:"unit"`
	PriceCents   int64  `yaml:"price_cents"`
	LeadTimeDays int    `yaml:"lead_time_days"`
}

type PerformanceYAML struct {
	Supplier       string  `yaml:"supplier"`
	AvgRating      float64 `yaml:"avg_rating"`
	RatedDeals     int     `yaml:"rated_deals"`
	ReliabilityPct float64 `yaml:"reliability_pct"`
}

func LoadScenario(filePath string) (*Scenario, error) {
	file, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return ParseScenario(file)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "decode scenario")
	}
	for i, item := range s.Items {
		if item.Name == "" || item.Unit == "" {
			return nil, errors.Errorf("item %d: name and unit are required", i)
		}
		if item.Quantity <= 0 {
			return nil, errors.Wrapf(model.ErrInvalidQuantity, "item %q", item.Name)
		}
	}
	return &s, nil
}

func SaveScenario(filePath string, s *Scenario) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0666)
}

// ID maps a scenario name to its stable id.
func ID(name string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(name))
}

func (s *Scenario) ScoringWeights() model.ScoringWeights {
	if s.Weights == nil {
		return model.DefaultScoringWeights()
	}
	return model.ScoringWeights(*s.Weights)
}

func (s *Scenario) BonusPolicy() model.BonusPolicy {
	if s.Bonus == nil {
		return model.DefaultBonusPolicy()
	}
	return model.BonusPolicy(*s.Bonus)
}

func (s *Scenario) RankingInput() service.RankingInput {
	items := make([]model.LineItem, 0, len(s.Items))
	for _, item := range s.Items {
		items = append(items, model.LineItem{
			ID:            ID(item.Name),
			CatalogUnitID: ID(item.Unit),
			Quantity:      item.Quantity,
		})
	}

	offers := make([]model.SupplierOffer, 0, len(s.Offers))
	for _, o := range s.Offers {
		offers = append(offers, model.SupplierOffer{
			SupplierID:    ID(o.Supplier),
			CatalogUnitID: ID(o.Unit),
			PriceCents:    o.PriceCents,
			LeadTimeDays:  o.LeadTimeDays,
		})
	}

	performance := make(map[uuid.UUID]model.SupplierPerformance, len(s.Performance))
	for _, p := range s.Performance {
		id := ID(p.Supplier)
		performance[id] = model.SupplierPerformance{
			SupplierID:     id,
			AvgRating:      p.AvgRating,
			RatedDeals:     p.RatedDeals,
			ReliabilityPct: p.ReliabilityPct,
		}
	}

	return service.RankingInput{
		Items:       items,
		Offers:      service.NewOfferBook(offers),
		Performance: performance,
		Weights:     s.ScoringWeights(),
	}
}

// Names resolves ids back to the names used in the file.
func (s *Scenario) Names() map[uuid.UUID]string {
	names := make(map[uuid.UUID]string)
	for _, item := range s.Items {
		names[ID(item.Name)] = item.Name
		names[ID(item.Unit)] = item.Unit
	}
	for _, o := range s.Offers {
		names[ID(o.Supplier)] = o.Supplier
	}
	for _, p := range s.Performance {
		names[ID(p.Supplier)] = p.Supplier
	}
	return names
}
