package mysql

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"quoteengine/pkg/quote/domain/model"
)

const weightsRowID = 1

type sqlxWeights struct {
	Price        int `db:"price"`
	Rating       int `db:"rating"`
	DeliveryTime int `db:"delivery_time"`
	Reliability  int `db:"reliability"`
}

func NewWeightsRepository(db *sqlx.DB) model.WeightsRepository {
	return &weightsRepository{db: db}
}

type weightsRepository struct {
	db *sqlx.DB
}

func (r *weightsRepository) Get(ctx context.Context) (model.ScoringWeights, error) {
	var row sqlxWeights
	err := r.db.GetContext(ctx, &row,
		`SELECT price, rating, delivery_time, reliability FROM scoring_weights WHERE id = ?`, weightsRowID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultScoringWeights(), nil
	}
	if err != nil {
		return model.ScoringWeights{}, errors.Wrap(err, "find scoring weights")
	}
	return model.ScoringWeights(row), nil
}

func (r *weightsRepository) Save(ctx context.Context, weights model.ScoringWeights) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO scoring_weights (id, price, rating, delivery_time, reliability)
		VALUES (1, :price, :rating, :delivery_time, :reliability)
		ON DUPLICATE KEY UPDATE price = VALUES(price), rating = VALUES(rating),
			delivery_time = VALUES(delivery_time), reliability = VALUES(reliability)`,
		sqlxWeights(weights))
	return errors.Wrap(err, "save scoring weights")
}
