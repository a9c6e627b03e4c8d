package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"quoteengine/pkg/quote/domain/model"
)

type sqlxQuote struct {
	ID              uuid.UUID      `db:"id"`
	LineageID       uuid.UUID      `db:"lineage_id"`
	ParentID        uuid.NullUUID  `db:"parent_id"`
	CustomerID      uuid.UUID      `db:"customer_id"`
	Status          string         `db:"status"`
	Version         int            `db:"version"`
	PricelistID     uuid.NullUUID  `db:"pricelist_id"`
	AutoProduction  bool           `db:"auto_production"`
	FinalValueCents int64          `db:"final_value_cents"`
	RejectionReason sql.NullString `db:"rejection_reason"`
	LockVersion     int            `db:"lock_version"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

type sqlxLineItem struct {
	ID               uuid.UUID     `db:"id"`
	QuoteID          uuid.UUID     `db:"quote_id"`
	Position         int           `db:"position"`
	CatalogUnitID    uuid.UUID     `db:"catalog_unit_id"`
	Quantity         int           `db:"quantity"`
	UnitPriceCents   int64         `db:"unit_price_cents"`
	PriceCents       int64         `db:"price_cents"`
	ManualPriceCents sql.NullInt64 `db:"manual_price_cents"`
	AssignmentID     uuid.NullUUID `db:"assignment_id"`
}

type sqlxAssignment struct {
	ID                uuid.UUID    `db:"id"`
	LineItemID        uuid.UUID    `db:"line_item_id"`
	SupplierID        uuid.UUID    `db:"supplier_id"`
	SupplierCostCents int64        `db:"supplier_cost_cents"`
	DeliveryDays      int          `db:"delivery_days"`
	AssignedBy        uuid.UUID    `db:"assigned_by"`
	AssignedAt        time.Time    `db:"assigned_at"`
	CancelledAt       sql.NullTime `db:"cancelled_at"`
	CancelReason      string       `db:"cancel_reason"`
}

type sqlxTransition struct {
	QuoteID    uuid.UUID `db:"quote_id"`
	Event      string    `db:"event"`
	FromStatus string    `db:"from_status"`
	ToStatus   string    `db:"to_status"`
	ActorID    uuid.UUID `db:"actor_id"`
	Reason     string    `db:"reason"`
	ItemIDs    []byte    `db:"item_ids"`
	CreatedAt  time.Time `db:"created_at"`
}

func NewQuoteRepository(db *sqlx.DB) model.QuoteRepository {
	return &quoteRepository{db: db}
}

type quoteRepository struct {
	db *sqlx.DB
}

func (r *quoteRepository) NextID() (uuid.UUID, error) {
	return uuid.NewRandom()
}

func (r *quoteRepository) Create(ctx context.Context, quote *model.Quote) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO quote_lineages (id, current_quote_id, latest_version) VALUES (?, ?, ?)`,
			quote.LineageID, quote.ID, quote.Version)
		if err != nil {
			return errors.Wrap(err, "insert quote lineage")
		}
		return insertQuote(ctx, tx, quote)
	})
}

func (r *quoteRepository) Find(ctx context.Context, id uuid.UUID) (*model.Quote, error) {
	var q sqlxQuote
	err := r.db.GetContext(ctx, &q, `SELECT * FROM quotes WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrQuoteNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find quote %s", id)
	}

	var items []sqlxLineItem
	err = r.db.SelectContext(ctx, &items,
		`SELECT id, quote_id, position, catalog_unit_id, quantity, unit_price_cents, price_cents, manual_price_cents, assignment_id
		FROM line_items WHERE quote_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "find line items of quote %s", id)
	}

	assignments, err := r.findAssignments(ctx, items)
	if err != nil {
		return nil, err
	}
	return toQuote(q, items, assignments)
}

func (r *quoteRepository) findAssignments(ctx context.Context, items []sqlxLineItem) (map[uuid.UUID][]sqlxAssignment, error) {
	byItem := make(map[uuid.UUID][]sqlxAssignment, len(items))
	if len(items) == 0 {
		return byItem, nil
	}
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}

	query, args, err := sqlx.In(
		`SELECT * FROM supplier_assignments WHERE line_item_id IN (?) ORDER BY assigned_at, id`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "build assignment query")
	}
	var rows []sqlxAssignment
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "find supplier assignments")
	}
	for _, row := range rows {
		byItem[row.LineItemID] = append(byItem[row.LineItemID], row)
	}
	return byItem, nil
}

func (r *quoteRepository) Update(ctx context.Context, quote *model.Quote) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE quotes SET pricelist_id = ?, auto_production = ?, final_value_cents = ?, lock_version = ?, updated_at = ?
			WHERE id = ? AND lock_version = ?`,
			nullUUID(quote.PricelistID), quote.AutoProduction, quote.FinalValueCents, quote.LockVersion, quote.UpdatedAt,
			quote.ID, quote.LockVersion-1)
		if err != nil {
			return errors.Wrapf(err, "update quote %s", quote.ID)
		}
		if err := r.expectOne(ctx, tx, res, quote.ID); err != nil {
			return err
		}

		for _, item := range quote.Items {
			_, err := tx.ExecContext(ctx,
				`UPDATE line_items SET unit_price_cents = ?, price_cents = ?, manual_price_cents = ? WHERE id = ? AND quote_id = ?`,
				item.UnitPriceCents, item.PriceCents, nullInt64(item.ManualPriceCents), item.ID, quote.ID)
			if err != nil {
				return errors.Wrapf(err, "update line item %s", item.ID)
			}
		}
		return nil
	})
}

func (r *quoteRepository) PersistTransition(ctx context.Context, quote *model.Quote, record model.TransitionRecord) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE quotes SET status = ?, rejection_reason = ?, lock_version = ?, updated_at = ?
			WHERE id = ? AND status = ? AND lock_version = ?`,
			string(record.ToStatus), nullString(quote.RejectionReason), quote.LockVersion, quote.UpdatedAt,
			quote.ID, string(record.FromStatus), quote.LockVersion-1)
		if err != nil {
			return errors.Wrapf(err, "transition quote %s", quote.ID)
		}
		if err := r.expectOne(ctx, tx, res, quote.ID); err != nil {
			return err
		}

		if record.Event == model.EventCancelSupplier {
			if err := cancelAssignments(ctx, tx, quote, record.ItemIDs); err != nil {
				return err
			}
		}
		return insertTransition(ctx, tx, record)
	})
}

// CreateRevision locks the lineage row so concurrent revisions of one lineage
// run one after another; the loser sees a moved current version.
func (r *quoteRepository) CreateRevision(ctx context.Context, parent *model.Quote, revision *model.Quote, record model.TransitionRecord) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var currentID uuid.UUID
		err := tx.GetContext(ctx, &currentID,
			`SELECT current_quote_id FROM quote_lineages WHERE id = ? FOR UPDATE`, parent.LineageID)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrQuoteNotFound
		}
		if err != nil {
			return errors.Wrapf(err, "lock lineage %s", parent.LineageID)
		}
		if currentID != parent.ID {
			return errors.Wrapf(model.ErrOptimisticLock, "lineage %s moved to %s", parent.LineageID, currentID)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE quotes SET status = ?, lock_version = ?, updated_at = ? WHERE id = ? AND status = ? AND lock_version = ?`,
			string(model.Superseded), parent.LockVersion, parent.UpdatedAt,
			parent.ID, string(record.FromStatus), parent.LockVersion-1)
		if err != nil {
			return errors.Wrapf(err, "supersede quote %s", parent.ID)
		}
		if err := r.expectOne(ctx, tx, res, parent.ID); err != nil {
			return err
		}

		if err := insertQuote(ctx, tx, revision); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE quote_lineages SET current_quote_id = ?, latest_version = ? WHERE id = ?`,
			revision.ID, revision.Version, parent.LineageID)
		if err != nil {
			return errors.Wrapf(err, "advance lineage %s", parent.LineageID)
		}
		return insertTransition(ctx, tx, record)
	})
}

// AssignSupplier locks the quote row, claims the line item only while it has
// no supplier and bumps lock_version so readers holding the old version fail
// their guarded writes.
func (r *quoteRepository) AssignSupplier(ctx context.Context, quoteID uuid.UUID, a model.SupplierAssignment) (int, error) {
	var lockVersion int
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var row struct {
			Status      string `db:"status"`
			LockVersion int    `db:"lock_version"`
		}
		err := tx.GetContext(ctx, &row, `SELECT status, lock_version FROM quotes WHERE id = ? FOR UPDATE`, quoteID)
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrQuoteNotFound
		}
		if err != nil {
			return errors.Wrapf(err, "lock quote %s", quoteID)
		}
		if model.QuoteStatus(row.Status).IsTerminal() {
			return model.ErrQuoteCannotBeModified
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE line_items SET assignment_id = ?, supplier_id = ?, supplier_cost_cents = ?, delivery_days = ?
			WHERE id = ? AND quote_id = ? AND supplier_id IS NULL`,
			a.ID, a.SupplierID, a.SupplierCostCents, a.DeliveryDays, a.LineItemID, quoteID)
		if err != nil {
			return errors.Wrapf(err, "assign supplier to line item %s", a.LineItemID)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return errors.WithStack(err)
		}
		if affected == 0 {
			var exists int
			err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM line_items WHERE id = ? AND quote_id = ?`, a.LineItemID, quoteID)
			if err != nil {
				return errors.WithStack(err)
			}
			if exists == 0 {
				return model.ErrLineItemNotFound
			}
			return model.ErrAlreadyAssigned
		}

		lockVersion = row.LockVersion + 1
		_, err = tx.ExecContext(ctx,
			`UPDATE quotes SET lock_version = ?, updated_at = ? WHERE id = ?`,
			lockVersion, a.AssignedAt, quoteID)
		if err != nil {
			return errors.Wrapf(err, "bump lock version of quote %s", quoteID)
		}
		return insertAssignment(ctx, tx, a)
	})
	if err != nil {
		return 0, err
	}
	return lockVersion, nil
}

func (r *quoteRepository) History(ctx context.Context, quoteID uuid.UUID) ([]model.TransitionRecord, error) {
	var rows []sqlxTransition
	err := r.db.SelectContext(ctx, &rows,
		`SELECT quote_id, event, from_status, to_status, actor_id, reason, item_ids, created_at
		FROM quote_transitions WHERE quote_id = ? ORDER BY id`, quoteID)
	if err != nil {
		return nil, errors.Wrapf(err, "find history of quote %s", quoteID)
	}

	records := make([]model.TransitionRecord, 0, len(rows))
	for _, row := range rows {
		var itemIDs []uuid.UUID
		if err := json.Unmarshal(row.ItemIDs, &itemIDs); err != nil {
			return nil, errors.Wrap(err, "decode transition item ids")
		}
		records = append(records, model.TransitionRecord{
			QuoteID:    row.QuoteID,
			Event:      model.QuoteEvent(row.Event),
			FromStatus: model.QuoteStatus(row.FromStatus),
			ToStatus:   model.QuoteStatus(row.ToStatus),
			ActorID:    row.ActorID,
			Reason:     row.Reason,
			ItemIDs:    itemIDs,
			At:         row.CreatedAt,
		})
	}
	return records, nil
}

// expectOne turns a zero-row guarded update into ErrOptimisticLock, or
// ErrQuoteNotFound when the quote is gone.
func (r *quoteRepository) expectOne(ctx context.Context, tx *sqlx.Tx, res sql.Result, quoteID uuid.UUID) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.WithStack(err)
	}
	if affected == 1 {
		return nil
	}
	var exists int
	if err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM quotes WHERE id = ?`, quoteID); err != nil {
		return errors.WithStack(err)
	}
	if exists == 0 {
		return model.ErrQuoteNotFound
	}
	return model.ErrOptimisticLock
}

func insertQuote(ctx context.Context, tx *sqlx.Tx, q *model.Quote) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO quotes (id, lineage_id, parent_id, customer_id, status, version, pricelist_id, auto_production,
			final_value_cents, rejection_reason, lock_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.LineageID, nullUUID(q.ParentID), q.CustomerID, string(q.Status), q.Version, nullUUID(q.PricelistID),
		q.AutoProduction, q.FinalValueCents, nullString(q.RejectionReason), q.LockVersion, q.CreatedAt, q.UpdatedAt)
	if err != nil {
		return errors.Wrapf(err, "insert quote %s", q.ID)
	}

	for position, item := range q.Items {
		var supplierID uuid.NullUUID
		var assignmentID uuid.NullUUID
		var cost, days sql.NullInt64
		if item.Assignment != nil {
			assignmentID = uuid.NullUUID{UUID: item.Assignment.ID, Valid: true}
			supplierID = uuid.NullUUID{UUID: item.Assignment.SupplierID, Valid: true}
			cost = sql.NullInt64{Int64: item.Assignment.SupplierCostCents, Valid: true}
			days = sql.NullInt64{Int64: int64(item.Assignment.DeliveryDays), Valid: true}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO line_items (id, quote_id, position, catalog_unit_id, quantity, unit_price_cents, price_cents,
				manual_price_cents, assignment_id, supplier_id, supplier_cost_cents, delivery_days)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, q.ID, position, item.CatalogUnitID, item.Quantity, item.UnitPriceCents, item.PriceCents,
			nullInt64(item.ManualPriceCents), assignmentID, supplierID, cost, days)
		if err != nil {
			return errors.Wrapf(err, "insert line item %s", item.ID)
		}
		for _, a := range item.History {
			if err := insertAssignment(ctx, tx, a); err != nil {
				return err
			}
		}
	}
	return nil
}

func insertAssignment(ctx context.Context, tx *sqlx.Tx, a model.SupplierAssignment) error {
	var cancelledAt sql.NullTime
	if a.CancelledAt != nil {
		cancelledAt = sql.NullTime{Time: *a.CancelledAt, Valid: true}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO supplier_assignments (id, line_item_id, supplier_id, supplier_cost_cents, delivery_days,
			assigned_by, assigned_at, cancelled_at, cancel_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.LineItemID, a.SupplierID, a.SupplierCostCents, a.DeliveryDays,
		a.AssignedBy, a.AssignedAt, cancelledAt, a.CancelReason)
	return errors.Wrapf(err, "insert supplier assignment %s", a.ID)
}

// cancelAssignments closes the cancelled history entries and releases the
// line items. Rows of already closed entries are left untouched.
func cancelAssignments(ctx context.Context, tx *sqlx.Tx, quote *model.Quote, itemIDs []uuid.UUID) error {
	for _, itemID := range itemIDs {
		idx, ok := quote.FindItem(itemID)
		if !ok {
			return model.ErrLineItemNotFound
		}
		for _, a := range quote.Items[idx].History {
			if a.CancelledAt == nil {
				continue
			}
			_, err := tx.ExecContext(ctx,
				`UPDATE supplier_assignments SET cancelled_at = ?, cancel_reason = ? WHERE id = ? AND cancelled_at IS NULL`,
				*a.CancelledAt, a.CancelReason, a.ID)
			if err != nil {
				return errors.Wrapf(err, "cancel supplier assignment %s", a.ID)
			}
			_, err = tx.ExecContext(ctx,
				`UPDATE line_items SET assignment_id = NULL, supplier_id = NULL, supplier_cost_cents = NULL, delivery_days = NULL
				WHERE id = ? AND assignment_id = ?`,
				itemID, a.ID)
			if err != nil {
				return errors.Wrapf(err, "release line item %s", itemID)
			}
		}
	}
	return nil
}

func insertTransition(ctx context.Context, tx *sqlx.Tx, record model.TransitionRecord) error {
	itemIDs := record.ItemIDs
	if itemIDs == nil {
		itemIDs = []uuid.UUID{}
	}
	encoded, err := json.Marshal(itemIDs)
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO quote_transitions (quote_id, event, from_status, to_status, actor_id, reason, item_ids, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.QuoteID, string(record.Event), string(record.FromStatus), string(record.ToStatus),
		record.ActorID, record.Reason, encoded, record.At)
	return errors.Wrapf(err, "insert transition of quote %s", record.QuoteID)
}

func toQuote(q sqlxQuote, items []sqlxLineItem, assignments map[uuid.UUID][]sqlxAssignment) (*model.Quote, error) {
	status, err := model.ParseQuoteStatus(q.Status)
	if err != nil {
		return nil, err
	}
	quote := &model.Quote{
		ID:              q.ID,
		LineageID:       q.LineageID,
		CustomerID:      q.CustomerID,
		Status:          status,
		Version:         q.Version,
		AutoProduction:  q.AutoProduction,
		FinalValueCents: q.FinalValueCents,
		LockVersion:     q.LockVersion,
		CreatedAt:       q.CreatedAt,
		UpdatedAt:       q.UpdatedAt,
		Items:           make([]model.LineItem, 0, len(items)),
	}
	if q.ParentID.Valid {
		quote.ParentID = &q.ParentID.UUID
	}
	if q.PricelistID.Valid {
		quote.PricelistID = &q.PricelistID.UUID
	}
	if q.RejectionReason.Valid {
		quote.RejectionReason = &q.RejectionReason.String
	}

	for _, row := range items {
		item := model.LineItem{
			ID:             row.ID,
			QuoteID:        row.QuoteID,
			CatalogUnitID:  row.CatalogUnitID,
			Quantity:       row.Quantity,
			UnitPriceCents: row.UnitPriceCents,
			PriceCents:     row.PriceCents,
		}
		if row.ManualPriceCents.Valid {
			price := row.ManualPriceCents.Int64
			item.ManualPriceCents = &price
		}
		for _, a := range assignments[row.ID] {
			assignment := model.SupplierAssignment{
				ID:                a.ID,
				LineItemID:        a.LineItemID,
				SupplierID:        a.SupplierID,
				SupplierCostCents: a.SupplierCostCents,
				DeliveryDays:      a.DeliveryDays,
				AssignedBy:        a.AssignedBy,
				AssignedAt:        a.AssignedAt,
				CancelReason:      a.CancelReason,
			}
			if a.CancelledAt.Valid {
				at := a.CancelledAt.Time
				assignment.CancelledAt = &at
			}
			item.History = append(item.History, assignment)
			if row.AssignmentID.Valid && row.AssignmentID.UUID == a.ID {
				current := assignment.Clone()
				item.Assignment = &current
			}
		}
		quote.Items = append(quote.Items, item)
	}
	return quote, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
