package main

import (
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"quoteengine/pkg/quote/domain/model"
	"quoteengine/pkg/quote/domain/service"
	"quoteengine/pkg/quote/infrastructure/fixture"
)

type itemRankingYAML struct {
	Supplier            string  `yaml:"supplier"`
	TotalScore          float64 `yaml:"total_score"`
	BaseScore           float64 `yaml:"base_score"`
	BonusPercent        float64 `yaml:"bonus_percent"`
	OtherItemsCoverable int     `yaml:"other_items_coverable"`
	PriceCents          int64   `yaml:"price_cents"`
	LeadTimeDays        int     `yaml:"lead_time_days"`
}

type quoteRankingYAML struct {
	Supplier        string  `yaml:"supplier"`
	Score           float64 `yaml:"score"`
	TotalCostCents  int64   `yaml:"total_cost_cents"`
	MaxDeliveryDays int     `yaml:"max_delivery_days"`
}

func rankCommand() *cli.Command {
	return &cli.Command{
		Name:  "rank",
		Usage: "rank suppliers for a YAML scenario without a database",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "scenario file", Required: true},
			&cli.StringFlag{Name: "item", Usage: "rank a single line item by name instead of the whole quote"},
		},
		Action: func(c *cli.Context) error {
			scenario, err := fixture.LoadScenario(c.String("file"))
			if err != nil {
				return err
			}
			ranker := service.NewRanker(scenario.BonusPolicy())
			input := scenario.RankingInput()
			names := scenario.Names()

			var out interface{}
			if itemName := c.String("item"); itemName != "" {
				out, err = rankItem(ranker, input, fixture.ID(itemName), names)
			} else {
				out, err = rankQuote(ranker, input, names)
			}
			if err != nil {
				return err
			}

			encoder := yaml.NewEncoder(os.Stdout)
			defer encoder.Close()
			return encoder.Encode(out)
		},
	}
}

func rankItem(ranker *service.Ranker, input service.RankingInput, itemID uuid.UUID, names map[uuid.UUID]string) ([]itemRankingYAML, error) {
	var item *model.LineItem
	for i := range input.Items {
		if input.Items[i].ID == itemID {
			item = &input.Items[i]
		}
	}
	if item == nil {
		return nil, errors.Wrap(model.ErrLineItemNotFound, "scenario")
	}

	rankings, err := ranker.RankForItem(*item, input)
	if err != nil {
		return nil, err
	}
	out := make([]itemRankingYAML, 0, len(rankings))
	for _, r := range rankings {
		out = append(out, itemRankingYAML{
			Supplier:            names[r.SupplierID],
			TotalScore:          r.TotalScore,
			BaseScore:           r.BaseScore,
			BonusPercent:        r.BonusPercent,
			OtherItemsCoverable: r.OtherItemsCoverable,
			PriceCents:          r.PriceCents,
			LeadTimeDays:        r.LeadTimeDays,
		})
	}
	return out, nil
}

func rankQuote(ranker *service.Ranker, input service.RankingInput, names map[uuid.UUID]string) ([]quoteRankingYAML, error) {
	rankings, err := ranker.RankForWholeQuote(input)
	if err != nil {
		return nil, err
	}
	out := make([]quoteRankingYAML, 0, len(rankings))
	for _, r := range rankings {
		out = append(out, quoteRankingYAML{
			Supplier:        names[r.SupplierID],
			Score:           r.Score,
			TotalCostCents:  r.TotalCostCents,
			MaxDeliveryDays: r.MaxDeliveryDays,
		})
	}
	return out, nil
}
