package order

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"food-delivery/internal/database"
	"food-delivery/internal/models"
	"food-delivery/internal/services/order/internal/domain"
	"food-delivery/internal/services/order/internal/lifecycle"
)

const systemActor = "order-service"

// Repository is the PostgreSQL implementation of CatalogStore and OrderStore
type Repository struct {
	db *database.DB
}

func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

var (
	_ CatalogStore = (*Repository)(nil)
	_ OrderStore   = (*Repository)(nil)
)

// storeError turns driver failures into domain errors. Timeouts and lost
// connections become retryable upstream errors; anything else is wrapped.
func storeError(err error, code domain.Code, op string) error {
	if err == nil {
		return nil
	}
	if _, ok := domain.AsError(err); ok {
		return err
	}

	var connectErr *pgconn.ConnectError
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		pgconn.Timeout(err) ||
		errors.As(err, &connectErr) ||
		pgconn.SafeToRetry(err) {
		return domain.Unavailable(code, op+" unavailable", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *Repository) GetRestaurant(ctx context.Context, id int64) (*domain.Restaurant, error) {
	var restaurant domain.Restaurant
	err := r.db.QueryRow(ctx, database.GetRestaurantSQL, id).Scan(
		&restaurant.ID,
		&restaurant.Name,
		&restaurant.OwnerID,
		&restaurant.Categories,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound(domain.CodeRestaurantNotFound, "restaurant not found",
			map[string]interface{}{"restaurant_id": id})
	}
	if err != nil {
		return nil, storeError(err, domain.CodeCatalogUnavailable, "get restaurant")
	}

	address, err := r.restaurantAddress(ctx, id)
	if err != nil {
		return nil, err
	}
	restaurant.Address = address

	return &restaurant, nil
}

func (r *Repository) restaurantAddress(ctx context.Context, restaurantID int64) (*models.Address, error) {
	var (
		addr                models.Address
		userID, ownerRest   *int64
		latitude, longitude decimal.NullDecimal
	)
	err := r.db.QueryRow(ctx, database.GetRestaurantAddressSQL, restaurantID).Scan(
		&addr.ID,
		&userID,
		&ownerRest,
		&addr.Street,
		&addr.Number,
		&addr.Complement,
		&addr.Neighborhood,
		&addr.City,
		&addr.State,
		&addr.ZipCode,
		&latitude,
		&longitude,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError(err, domain.CodeCatalogUnavailable, "get restaurant address")
	}

	owner, err := models.OwnerFromColumns(userID, ownerRest)
	if err != nil {
		return nil, fmt.Errorf("address %d: %w", addr.ID, err)
	}
	addr.Owner = owner
	if latitude.Valid {
		addr.Latitude = &latitude.Decimal
	}
	if longitude.Valid {
		addr.Longitude = &longitude.Decimal
	}
	return &addr, nil
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := r.db.QueryRow(ctx, database.GetProductSQL, id).Scan(
		&p.ID, &p.RestaurantID, &p.Name, &p.Description, &p.BasePrice, &p.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound(domain.CodeProductNotFound, "product not found",
			map[string]interface{}{"product_id": id})
	}
	if err != nil {
		return nil, storeError(err, domain.CodeCatalogUnavailable, "get product")
	}
	return &p, nil
}

func (r *Repository) GetOptionGroups(ctx context.Context, productID int64) ([]domain.OptionGroup, error) {
	groups, err := r.optionGroups(ctx, []int64{productID})
	if err != nil {
		return nil, err
	}
	return groups[productID], nil
}

func (r *Repository) ListProducts(ctx context.Context, restaurantID int64) ([]domain.Product, error) {
	rows, err := r.db.Query(ctx, database.ListProductsSQL, restaurantID)
	if err != nil {
		return nil, storeError(err, domain.CodeCatalogUnavailable, "list products")
	}
	products, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Product, error) {
		var p domain.Product
		err := row.Scan(&p.ID, &p.RestaurantID, &p.Name, &p.Description, &p.BasePrice, &p.Version)
		return p, err
	})
	if err != nil {
		return nil, storeError(err, domain.CodeCatalogUnavailable, "list products")
	}

	ids := make([]int64, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	groups, err := r.optionGroups(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range products {
		products[i].OptionGroups = groups[products[i].ID]
	}
	return products, nil
}

// optionGroups loads the option groups of several products, keyed by product id
func (r *Repository) optionGroups(ctx context.Context, productIDs []int64) (map[int64][]domain.OptionGroup, error) {
	result := make(map[int64][]domain.OptionGroup, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx, database.GetOptionGroupsSQL, productIDs)
	if err != nil {
		return nil, storeError(err, domain.CodeCatalogUnavailable, "get option groups")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			g          domain.OptionGroup
			optionID   *int64
			optionName *string
			extraPrice decimal.NullDecimal
		)
		if err := rows.Scan(&g.ID, &g.ProductID, &g.Name, &g.IsRequired, &g.MinSelection, &g.MaxSelection,
			&optionID, &optionName, &extraPrice); err != nil {
			return nil, storeError(err, domain.CodeCatalogUnavailable, "scan option group")
		}

		groups := result[g.ProductID]
		if n := len(groups); n == 0 || groups[n-1].ID != g.ID {
			g.Options = []domain.Option{}
			groups = append(groups, g)
		}
		if optionID != nil {
			last := &groups[len(groups)-1]
			last.Options = append(last.Options, domain.Option{
				ID:            *optionID,
				OptionGroupID: g.ID,
				Name:          *optionName,
				ExtraPrice:    extraPrice.Decimal,
			})
		}
		result[g.ProductID] = groups
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(err, domain.CodeCatalogUnavailable, "get option groups")
	}
	return result, nil
}

// checkProductVersions locks the referenced products for the rest of the
// transaction and fails with CatalogChanged if any moved past the version the
// order was priced at.
func checkProductVersions(ctx context.Context, tx pgx.Tx, expected map[int64]int64) error {
	ids := make([]int64, 0, len(expected))
	for id := range expected {
		ids = append(ids, id)
	}

	rows, err := tx.Query(ctx, database.LockProductVersionsSQL, ids)
	if err != nil {
		return err
	}
	current := make(map[int64]int64, len(ids))
	var id, version int64
	_, err = pgx.ForEachRow(rows, []any{&id, &version}, func() error {
		current[id] = version
		return nil
	})
	if err != nil {
		return err
	}

	return compareProductVersions(expected, current)
}

// compareProductVersions reports the lowest product id whose current version
// differs from the priced one. A product missing from current was deleted.
func compareProductVersions(expected, current map[int64]int64) error {
	ids := make([]int64, 0, len(expected))
	for id := range expected {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, productID := range ids {
		want := expected[productID]
		got, ok := current[productID]
		if ok && got == want {
			continue
		}
		details := map[string]interface{}{
			"product_id":     productID,
			"priced_version": want,
		}
		if ok {
			details["current_version"] = got
		} else {
			details["deleted"] = true
		}
		return domain.Consistency(domain.CodeCatalogChanged, "catalog changed while the order was being priced", details)
	}
	return nil
}

func insertItems(ctx context.Context, tx pgx.Tx, orderID int64, items []domain.OrderItem) error {
	batch := &pgx.Batch{}
	for _, item := range items {
		var itemID int64
		err := tx.QueryRow(ctx, database.InsertOrderItemSQL,
			orderID, item.ProductID, item.ProductName, item.ProductVersion,
			item.Quantity, item.BasePrice, item.LineTotal,
		).Scan(&itemID)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
		for _, opt := range item.Options {
			batch.Queue(database.InsertOrderItemOptionSQL, itemID, opt.OptionID, opt.OptionGroupID, opt.Name, opt.ExtraPrice)
		}
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order item options: %w", err)
	}
	return nil
}

// SaveOrder stores the order, its items, their options and the first status
// log entry in one transaction.
func (r *Repository) SaveOrder(ctx context.Context, order *domain.PricedOrder) (int64, error) {
	var orderID int64
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := checkProductVersions(ctx, tx, order.ProductVersions()); err != nil {
			return err
		}

		err := tx.QueryRow(ctx, database.InsertOrderSQL,
			order.UserID, order.RestaurantID, string(order.Status), order.TotalPrice,
		).Scan(&orderID)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		if err := insertItems(ctx, tx, orderID, order.Items); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, database.InsertOrderStatusLogSQL, orderID, string(order.Status), systemActor, "order placed")
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" && pgErr.ConstraintName == "orders_user_id_fkey" {
			return 0, domain.Validation(domain.CodeInvalidRequest, "user does not exist",
				map[string]interface{}{"user_id": order.UserID})
		}
		return 0, storeError(err, domain.CodeStoreUnavailable, "save order")
	}
	return orderID, nil
}

func (r *Repository) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	var (
		o      domain.Order
		status string
	)
	err := r.db.QueryRow(ctx, database.GetOrderSQL, id).Scan(
		&o.ID, &o.UserID, &o.RestaurantID, &status, &o.TotalPrice, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, orderNotFound(id)
	}
	if err != nil {
		return nil, storeError(err, domain.CodeStoreUnavailable, "get order")
	}
	o.Status = domain.OrderStatus(status)

	rows, err := r.db.Query(ctx, database.GetOrderItemsSQL, id)
	if err != nil {
		return nil, storeError(err, domain.CodeStoreUnavailable, "get order items")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item          domain.OrderItem
			optionID      *int64
			optionGroupID *int64
			optionName    *string
			extraPrice    decimal.NullDecimal
		)
		if err := rows.Scan(&item.ID, &item.ProductID, &item.ProductName, &item.ProductVersion, &item.Quantity,
			&item.BasePrice, &item.LineTotal, &optionID, &optionGroupID, &optionName, &extraPrice); err != nil {
			return nil, storeError(err, domain.CodeStoreUnavailable, "scan order item")
		}

		if n := len(o.Items); n == 0 || o.Items[n-1].ID != item.ID {
			o.Items = append(o.Items, item)
		}
		if optionID != nil {
			last := &o.Items[len(o.Items)-1]
			last.Options = append(last.Options, domain.OrderItemOption{
				OptionID:      *optionID,
				OptionGroupID: *optionGroupID,
				Name:          *optionName,
				ExtraPrice:    extraPrice.Decimal,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(err, domain.CodeStoreUnavailable, "get order items")
	}
	return &o, nil
}

// UpdateStatus moves the order from one status to another if nobody changed
// it since expectedVersion was read.
func (r *Repository) UpdateStatus(ctx context.Context, id, expectedVersion int64, from, to domain.OrderStatus, changedBy string) error {
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		return updateStatus(ctx, tx, id, expectedVersion, from, to, changedBy)
	})
	return storeError(err, domain.CodeStoreUnavailable, "update order status")
}

// statusWriter is the part of pgx.Tx a status change needs
type statusWriter interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func updateStatus(ctx context.Context, tx statusWriter, id, expectedVersion int64, from, to domain.OrderStatus, changedBy string) error {
	tag, err := tx.Exec(ctx, database.UpdateOrderStatusSQL, string(to), id, expectedVersion, string(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, database.OrderExistsSQL, id).Scan(&exists); err != nil {
			return err
		}
		return staleStatusError(id, expectedVersion, exists)
	}

	_, err = tx.Exec(ctx, database.InsertOrderStatusLogSQL, id, string(to), changedBy, nil)
	return err
}

// staleStatusError explains a conditional status update that matched no row
func staleStatusError(id, expectedVersion int64, exists bool) error {
	if !exists {
		return orderNotFound(id)
	}
	return domain.Conflict("order was modified concurrently", map[string]interface{}{
		"order_id":         id,
		"expected_version": expectedVersion,
	})
}

// ReplaceItems swaps the lines of a pending order for a re-priced set
func (r *Repository) ReplaceItems(ctx context.Context, id, expectedVersion int64, order *domain.PricedOrder) error {
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		var (
			status  string
			version int64
		)
		err := tx.QueryRow(ctx, database.LockOrderSQL, id).Scan(&status, &version)
		if errors.Is(err, pgx.ErrNoRows) {
			return orderNotFound(id)
		}
		if err != nil {
			return err
		}

		if err := lifecycle.EnsureModifiable(domain.OrderStatus(status)); err != nil {
			return err
		}
		if version != expectedVersion {
			return staleStatusError(id, expectedVersion, true)
		}

		if err := checkProductVersions(ctx, tx, order.ProductVersions()); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, database.DeleteOrderItemsSQL, id); err != nil {
			return err
		}
		if err := insertItems(ctx, tx, id, order.Items); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, database.UpdateOrderTotalSQL, order.TotalPrice, id); err != nil {
			return err
		}

		_, err = tx.Exec(ctx, database.InsertOrderStatusLogSQL, id, status, systemActor, "lines revised")
		return err
	})
	return storeError(err, domain.CodeStoreUnavailable, "replace order items")
}

func (r *Repository) History(ctx context.Context, id int64) ([]domain.StatusChange, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, database.OrderExistsSQL, id).Scan(&exists); err != nil {
		return nil, storeError(err, domain.CodeStoreUnavailable, "check order")
	}
	if !exists {
		return nil, orderNotFound(id)
	}

	rows, err := r.db.Query(ctx, database.GetOrderStatusHistorySQL, id)
	if err != nil {
		return nil, storeError(err, domain.CodeStoreUnavailable, "get order history")
	}
	history, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.StatusChange, error) {
		var (
			entry  domain.StatusChange
			status string
		)
		err := row.Scan(&status, &entry.ChangedBy, &entry.ChangedAt, &entry.Notes)
		entry.Status = domain.OrderStatus(status)
		return entry, err
	})
	if err != nil {
		return nil, storeError(err, domain.CodeStoreUnavailable, "get order history")
	}
	return history, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func orderNotFound(id int64) *domain.Error {
	return domain.NotFound(domain.CodeOrderNotFound, "order not found", map[string]interface{}{"order_id": id})
}
