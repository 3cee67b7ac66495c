package database

// Catalog queries
const (
	GetRestaurantSQL = `
		SELECT r.id, r.name, r.owner_id,
		       COALESCE(array_agg(fc.name ORDER BY fc.name) FILTER (WHERE fc.id IS NOT NULL), '{}')
		FROM restaurants r
		LEFT JOIN restaurant_categories rc ON rc.restaurant_id = r.id
		LEFT JOIN food_categories fc ON fc.id = rc.food_category_id
		WHERE r.id = $1
		GROUP BY r.id`

	GetRestaurantAddressSQL = `
		SELECT id, user_id, restaurant_id, street, number, complement, neighborhood,
		       city, state, zip_code, latitude, longitude
		FROM addresses
		WHERE restaurant_id = $1
		ORDER BY id
		LIMIT 1`

	GetProductSQL = `
		SELECT id, restaurant_id, name, COALESCE(description, ''), base_price, version
		FROM products WHERE id = $1`

	ListProductsSQL = `
		SELECT id, restaurant_id, name, COALESCE(description, ''), base_price, version
		FROM products WHERE restaurant_id = $1
		ORDER BY id`

	// One row per option; groups without options come back with NULL option columns.
	GetOptionGroupsSQL = `
		SELECT g.id, g.product_id, g.name, g.is_required, g.min_selection, g.max_selection,
		       o.id, o.name, o.extra_price
		FROM option_groups g
		LEFT JOIN options o ON o.option_group_id = g.id
		WHERE g.product_id = ANY($1::bigint[])
		ORDER BY g.product_id, g.id, o.id`

	LockProductVersionsSQL = `
		SELECT id, version FROM products
		WHERE id = ANY($1::bigint[])
		FOR SHARE`
)

// Order queries
const (
	InsertOrderSQL = `
		INSERT INTO orders (user_id, restaurant_id, status, total_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	InsertOrderItemSQL = `
		INSERT INTO order_items (order_id, product_id, product_name, product_version, quantity, base_price, line_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	InsertOrderItemOptionSQL = `
		INSERT INTO order_item_options (order_item_id, option_id, option_group_id, option_name, extra_price)
		VALUES ($1, $2, $3, $4, $5)`

	InsertOrderStatusLogSQL = `
		INSERT INTO order_status_log (order_id, status, changed_by, notes)
		VALUES ($1, $2, $3, $4)`

	GetOrderSQL = `
		SELECT id, user_id, restaurant_id, status, total_price, version, created_at, updated_at
		FROM orders WHERE id = $1`

	GetOrderItemsSQL = `
		SELECT i.id, i.product_id, i.product_name, i.product_version, i.quantity, i.base_price, i.line_total,
		       o.option_id, o.option_group_id, o.option_name, o.extra_price
		FROM order_items i
		LEFT JOIN order_item_options o ON o.order_item_id = i.id
		WHERE i.order_id = $1
		ORDER BY i.id, o.option_group_id, o.option_id`

	LockOrderSQL = `
		SELECT status, version FROM orders WHERE id = $1 FOR UPDATE`

	UpdateOrderStatusSQL = `
		UPDATE orders SET status = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3 AND status = $4`

	UpdateOrderTotalSQL = `
		UPDATE orders SET total_price = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2`

	DeleteOrderItemsSQL = `
		DELETE FROM order_items WHERE order_id = $1`

	OrderExistsSQL = `
		SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`

	GetOrderStatusHistorySQL = `
		SELECT status, changed_by, changed_at, notes
		FROM order_status_log
		WHERE order_id = $1
		ORDER BY changed_at ASC, id ASC`
)
