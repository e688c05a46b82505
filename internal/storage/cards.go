package storage

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

func (q *Queries) InsertCard(ctx context.Context, userID int64, c Card) (int64, error) {
	id, err := q.insertReturningID(ctx,
		"INSERT INTO cards (user_id, name, credit_limit) VALUES (?, ?, ?)",
		userID, c.Name, amountArg(c.CreditLimit))
	if err != nil {
		return 0, fmt.Errorf("insert card: %w", err)
	}
	return id, nil
}

func (q *Queries) UpdateCard(ctx context.Context, userID int64, c Card) error {
	err := q.execTargeted(ctx,
		"UPDATE cards SET name = ?, credit_limit = ? WHERE user_id = ? AND id = ?",
		c.Name, amountArg(c.CreditLimit), userID, c.ID)
	if err != nil {
		return fmt.Errorf("update card %d: %w", c.ID, err)
	}
	return nil
}

func (q *Queries) ListCards(ctx context.Context, userID int64) ([]Card, error) {
	rows, err := q.query(ctx, "SELECT id, name, credit_limit FROM cards WHERE user_id = ? ORDER BY id", userID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	var out []Card
	for rows.Next() {
		var c Card
		if err := rows.Scan(&c.ID, &c.Name, &c.CreditLimit); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *Queries) InsertCardMonthLimit(ctx context.Context, userID int64, l CardMonthLimit) error {
	_, err := q.exec(ctx,
		"INSERT INTO card_month_limits (user_id, card_id, month, amount) VALUES (?, ?, ?, ?)",
		userID, l.CardID, l.Month, amountArg(l.Amount))
	if err != nil {
		return fmt.Errorf("insert card month limit: %w", err)
	}
	return nil
}

func (q *Queries) ListCardMonthLimits(ctx context.Context, userID int64) ([]CardMonthLimit, error) {
	rows, err := q.query(ctx,
		"SELECT card_id, month, amount FROM card_month_limits WHERE user_id = ? ORDER BY card_id, month", userID)
	if err != nil {
		return nil, fmt.Errorf("list card month limits: %w", err)
	}
	defer rows.Close()

	var out []CardMonthLimit
	for rows.Next() {
		var l CardMonthLimit
		if err := rows.Scan(&l.CardID, &l.Month, &l.Amount); err != nil {
			return nil, fmt.Errorf("scan card month limit: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteCardMonthLimits removes the overrides of the cards selected by scope.
func (q *Queries) DeleteCardMonthLimits(ctx context.Context, scope Scope) error {
	if scope.Empty() {
		return nil
	}
	where, args := scope.filter("card_id")
	if _, err := q.exec(ctx, "DELETE FROM card_month_limits WHERE "+where, args...); err != nil {
		return fmt.Errorf("delete card month limits: %w", err)
	}
	return nil
}

// amountArg renders amounts with two decimals so both dialects store the
// same text.
func amountArg(d decimal.Decimal) string {
	return d.StringFixed(2)
}
