package store

import (
	"context"

	"grocery-orders/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type cartLineRow struct {
	ID           int64               `db:"id"`
	UserID       int64               `db:"user_id"`
	ProductID    int64               `db:"product_id"`
	Quantity     int                 `db:"quantity"`
	ProductFound bool                `db:"product_found"`
	ProductName  *string             `db:"product_name"`
	RegularPrice decimal.NullDecimal `db:"regular_price"`
	PromoPrice   decimal.NullDecimal `db:"promo_price"`
	Image        *string             `db:"image"`
}

// GetCartLines returns the user's cart lines with their live product.
// Lines whose product is gone keep a nil Product.
func (s queries) GetCartLines(ctx context.Context, userID int64) ([]models.CartLine, error) {
	var rows []cartLineRow
	err := sqlx.SelectContext(ctx, s.q, &rows, `
		SELECT c.id, c.user_id, c.product_id, c.quantity,
		       p.id IS NOT NULL AS product_found,
		       p.name AS product_name, p.regular_price, p.promo_price, p.image
		FROM cart_items c
		LEFT JOIN products p ON p.id = c.product_id AND p.deleted_at IS NULL
		WHERE c.user_id = $1
		ORDER BY c.id`, userID)
	if err != nil {
		return nil, err
	}

	lines := make([]models.CartLine, 0, len(rows))
	for _, r := range rows {
		line := models.CartLine{
			ID:        r.ID,
			UserID:    r.UserID,
			ProductID: r.ProductID,
			Quantity:  r.Quantity,
		}
		if r.ProductFound {
			product := &models.Product{
				ID:           r.ProductID,
				RegularPrice: r.RegularPrice.Decimal,
				PromoPrice:   r.PromoPrice.Decimal,
				Image:        r.Image,
			}
			if r.ProductName != nil {
				product.Name = *r.ProductName
			}
			line.Product = product
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// ClearCart deletes every cart line of the user
func (s queries) ClearCart(ctx context.Context, userID int64) (int64, error) {
	res, err := s.q.ExecContext(ctx, "DELETE FROM cart_items WHERE user_id = $1", userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetProductsByIDs retrieves live products by IDs
func (s queries) GetProductsByIDs(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	var products []models.Product
	err := sqlx.SelectContext(ctx, s.q, &products, `
		SELECT id, name, regular_price, promo_price, image, deleted_at
		FROM products
		WHERE id = ANY($1) AND deleted_at IS NULL`, pq.Array(ids))
	return products, err
}
