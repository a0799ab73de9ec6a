package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"trading-core/internal/model"
)

// OrderStore persists OrderEvent updates into the single futures_order
// table, keyed by exchange order id: the first execution seen for an order
// id inserts, every later execution for the same order id updates in place.
type OrderStore struct {
	db *Database
}

// NewOrderStore wraps an open Database for order persistence.
func NewOrderStore(d *Database) *OrderStore {
	return &OrderStore{db: d}
}

// Upsert writes evt transactionally, keyed by order id: insert when no row
// exists for the order yet, update in place otherwise. Unknown side,
// execution-type and status values are rejected by the caller before
// reaching here (ordermanager's handleExecution logs and drops them) so
// this never needs to guess a canonical value.
func (s *OrderStore) Upsert(ctx context.Context, evt model.OrderEvent) error {
	tx, err := s.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ordermanager: begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM futures_order WHERE order_id = ?)`, evt.ExchangeOrderID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("ordermanager: check existing order: %w", err)
	}

	if !exists {
		if err := insertOrder(ctx, tx, evt); err != nil {
			return err
		}
	} else {
		if err := updateOrder(ctx, tx, evt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertOrder(ctx context.Context, tx *sql.Tx, evt model.OrderEvent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO futures_order (
			order_id, client_order_id, symbol, side, position_side, order_type,
			time_in_force, execution_type, status, orig_qty, orig_price, avg_price,
			cum_filled_qty, last_filled_qty, last_filled_price, commission,
			commission_asset, realized_pnl, is_maker, event_time, trade_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		evt.ExchangeOrderID, evt.ClientOrderID, evt.Symbol, string(evt.Side), string(evt.PositionSide), string(evt.OrderType),
		string(evt.TimeInForce), string(evt.ExecutionType), string(evt.Status),
		floatOf(evt.OrigQty), floatOf(evt.OrigPrice), floatOf(evt.AvgPrice),
		floatOf(evt.CumFilledQty), floatOf(evt.LastFilledQty), floatOf(evt.LastFilledPrice),
		floatOf(evt.Commission), evt.CommissionAsset, floatOf(evt.RealizedPnL), evt.IsMaker,
		timeOrNil(evt.EventTime), timeOrNil(evt.TradeTime),
	)
	if err != nil {
		return fmt.Errorf("ordermanager: insert order %d: %w", evt.ExchangeOrderID, err)
	}
	return nil
}

func updateOrder(ctx context.Context, tx *sql.Tx, evt model.OrderEvent) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE futures_order SET
			client_order_id = ?, side = ?, position_side = ?, order_type = ?,
			time_in_force = ?, execution_type = ?, status = ?, orig_qty = ?,
			orig_price = ?, avg_price = ?, cum_filled_qty = ?, last_filled_qty = ?,
			last_filled_price = ?, commission = ?, commission_asset = ?,
			realized_pnl = ?, is_maker = ?, event_time = ?, trade_time = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE order_id = ?
	`,
		evt.ClientOrderID, string(evt.Side), string(evt.PositionSide), string(evt.OrderType),
		string(evt.TimeInForce), string(evt.ExecutionType), string(evt.Status),
		floatOf(evt.OrigQty), floatOf(evt.OrigPrice), floatOf(evt.AvgPrice),
		floatOf(evt.CumFilledQty), floatOf(evt.LastFilledQty), floatOf(evt.LastFilledPrice),
		floatOf(evt.Commission), evt.CommissionAsset, floatOf(evt.RealizedPnL), evt.IsMaker,
		timeOrNil(evt.EventTime), timeOrNil(evt.TradeTime),
		evt.ExchangeOrderID,
	)
	if err != nil {
		return fmt.Errorf("ordermanager: update order %d: %w", evt.ExchangeOrderID, err)
	}
	return nil
}

func floatOf(d interface{ Float64() (float64, bool) }) float64 {
	v, _ := d.Float64()
	return v
}

func timeOrNil(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

// StoredOrder is a row read back from futures_order, used by the admin API
// and tests.
type StoredOrder struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          string
	PositionSide  string
	OrderType     string
	Status        string
	OrigQty       float64
	OrigPrice     float64
	AvgPrice      float64
	CumFilledQty  float64
}

// GetBySymbol returns every known order for symbol, most recently updated
// first.
func (s *OrderStore) GetBySymbol(ctx context.Context, symbol string) ([]StoredOrder, error) {
	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT order_id, client_order_id, symbol, side, position_side, order_type,
		       status, orig_qty, orig_price, avg_price, cum_filled_qty
		FROM futures_order WHERE symbol = ? ORDER BY updated_at DESC
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("ordermanager: query by symbol: %w", err)
	}
	defer rows.Close()

	var out []StoredOrder
	for rows.Next() {
		var o StoredOrder
		if err := rows.Scan(&o.OrderID, &o.ClientOrderID, &o.Symbol, &o.Side, &o.PositionSide,
			&o.OrderType, &o.Status, &o.OrigQty, &o.OrigPrice, &o.AvgPrice, &o.CumFilledQty); err != nil {
			return nil, fmt.Errorf("ordermanager: scan order row: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
