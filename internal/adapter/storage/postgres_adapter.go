package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/rl1809/order-placement/internal/core/domain"
	"github.com/rl1809/order-placement/internal/port"
)

// PostgresAdapter persists the catalog and orders in PostgreSQL using GORM.
// Caller manages the DB lifecycle.
type PostgresAdapter struct {
	db  *gorm.DB
	now func() time.Time
}

func NewPostgresAdapter(db *gorm.DB) *PostgresAdapter {
	return &PostgresAdapter{db: db, now: func() time.Time { return time.Now().UTC() }}
}

type customerRecord struct {
	ID    string `gorm:"primaryKey;column:id;type:varchar(64)"`
	Name  string `gorm:"column:name"`
	Email string `gorm:"column:email"`
}

func (customerRecord) TableName() string { return "customers" }

type productRecord struct {
	ID        string          `gorm:"primaryKey;column:id;type:varchar(64)"`
	Name      string          `gorm:"column:name"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Stock     int             `gorm:"column:stock;not null;check:stock >= 0"`
	Version   int             `gorm:"column:version;not null;default:0"`
	UpdatedAt time.Time       `gorm:"column:updated_at"`
}

func (productRecord) TableName() string { return "products" }

type orderRecord struct {
	ID         string            `gorm:"primaryKey;column:id;type:varchar(36)"`
	CustomerID string            `gorm:"column:customer_id;type:varchar(64);index"`
	Status     string            `gorm:"column:status;type:varchar(16)"`
	CreatedAt  time.Time         `gorm:"column:created_at;index"`
	UpdatedAt  time.Time         `gorm:"column:updated_at"`
	Items      []orderItemRecord `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (orderRecord) TableName() string { return "orders" }

type orderItemRecord struct {
	OrderID   string          `gorm:"primaryKey;column:order_id;type:varchar(36)"`
	Position  int             `gorm:"primaryKey;column:position;autoIncrement:false"`
	ProductID string          `gorm:"column:product_id;type:varchar(64)"`
	Quantity  int             `gorm:"column:quantity"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2)"`
}

func (orderItemRecord) TableName() string { return "order_items" }

// Migrate creates or updates the tables backing the adapter.
func (p *PostgresAdapter) Migrate(ctx context.Context) error {
	if err := p.ensureDB(); err != nil {
		return err
	}
	return p.db.WithContext(ctx).AutoMigrate(&customerRecord{}, &productRecord{}, &orderRecord{}, &orderItemRecord{})
}

// SaveCustomer and SaveProduct upsert catalog rows; used for seeding.
func (p *PostgresAdapter) SaveCustomer(ctx context.Context, c domain.Customer) error {
	rec := customerRecord{ID: c.ID, Name: c.Name, Email: c.Email}
	return p.db.WithContext(ctx).Save(&rec).Error
}

func (p *PostgresAdapter) SaveProduct(ctx context.Context, product domain.Product) error {
	rec := productRecord{ID: product.ID, Name: product.Name, Price: product.Price, Stock: product.Quantity, UpdatedAt: p.now()}
	return p.db.WithContext(ctx).Save(&rec).Error
}

func (p *PostgresAdapter) FindCustomerByID(ctx context.Context, id string) (*domain.Customer, error) {
	if err := p.ensureDB(); err != nil {
		return nil, err
	}
	var rec customerRecord
	if err := p.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query customer: %w", err)
	}
	return &domain.Customer{ID: rec.ID, Name: rec.Name, Email: rec.Email}, nil
}

func (p *PostgresAdapter) FindProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	if err := p.ensureDB(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	var records []productRecord
	if err := p.db.WithContext(ctx).Where("id IN ?", ids).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	return productsToDomain(records), nil
}

func (p *PostgresAdapter) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if err := p.ensureDB(); err != nil {
		return nil, err
	}
	var records []productRecord
	if err := p.db.WithContext(ctx).Order("id").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return productsToDomain(records), nil
}

func (p *PostgresAdapter) CreateOrder(ctx context.Context, customer domain.Customer, items []domain.OrderLineItem) (*domain.Order, error) {
	return p.CreateOrderWithDecrements(ctx, customer, items, nil)
}

func (p *PostgresAdapter) CreateOrderWithDecrements(ctx context.Context, customer domain.Customer, items []domain.OrderLineItem, decrements domain.StockDecrements) (*domain.Order, error) {
	if err := p.ensureDB(); err != nil {
		return nil, err
	}
	rec := p.newOrderRecord(customer, items)
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := decrementRecords(tx, decrements); err != nil {
			return err
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec.toDomain(), nil
}

func (p *PostgresAdapter) AdjustProductQuantities(ctx context.Context, decrements domain.StockDecrements) error {
	if err := p.ensureDB(); err != nil {
		return err
	}
	return p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return decrementRecords(tx, decrements)
	})
}

func (p *PostgresAdapter) CancelOrder(ctx context.Context, orderID string) error {
	if err := p.ensureDB(); err != nil {
		return err
	}
	result := p.db.WithContext(ctx).Model(&orderRecord{}).Where("id = ?", orderID).Updates(map[string]any{
		"status":     string(domain.OrderStatusCancelled),
		"updated_at": p.now(),
	})
	if result.Error != nil {
		return fmt.Errorf("cancel order: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (p *PostgresAdapter) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	if err := p.ensureDB(); err != nil {
		return nil, err
	}
	var rec orderRecord
	err := p.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		First(&rec, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query order: %w", err)
	}
	return rec.toDomain(), nil
}

func (p *PostgresAdapter) ensureDB() error {
	if p == nil || p.db == nil {
		return errors.New("postgres adapter not configured")
	}
	return nil
}

func (p *PostgresAdapter) newOrderRecord(customer domain.Customer, items []domain.OrderLineItem) orderRecord {
	now := p.now()
	rec := orderRecord{
		ID:         uuid.NewString(),
		CustomerID: customer.ID,
		Status:     string(domain.OrderStatusPlaced),
		CreatedAt:  now,
		UpdatedAt:  now,
		Items:      make([]orderItemRecord, 0, len(items)),
	}
	for i, item := range items {
		rec.Items = append(rec.Items, orderItemRecord{
			OrderID:   rec.ID,
			Position:  i,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return rec
}

func decrementRecords(tx *gorm.DB, decrements domain.StockDecrements) error {
	if err := decrements.Check(); err != nil {
		return err
	}
	var exhausted []string
	for _, id := range decrements.ProductIDs() {
		qty := decrements[id]
		result := tx.Model(&productRecord{}).
			Where("id = ? AND stock >= ?", id, qty).
			Updates(map[string]any{
				"stock":      gorm.Expr("stock - ?", qty),
				"version":    gorm.Expr("version + 1"),
				"updated_at": gorm.Expr("NOW()"),
			})
		if result.Error != nil {
			return fmt.Errorf("update stock %s: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			exhausted = append(exhausted, id)
		}
	}
	if len(exhausted) > 0 {
		return &domain.StockExhaustedError{ProductIDs: exhausted}
	}
	return nil
}

func productsToDomain(records []productRecord) []domain.Product {
	out := make([]domain.Product, 0, len(records))
	for _, r := range records {
		out = append(out, domain.Product{ID: r.ID, Name: r.Name, Price: r.Price, Quantity: r.Stock})
	}
	return out
}

func (r orderRecord) toDomain() *domain.Order {
	o := &domain.Order{
		ID:         r.ID,
		CustomerID: r.CustomerID,
		Status:     domain.OrderStatus(r.Status),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		Items:      make([]domain.OrderLineItem, 0, len(r.Items)),
	}
	for _, item := range r.Items {
		o.Items = append(o.Items, domain.OrderLineItem{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price})
	}
	return o
}

var (
	_ port.CustomerRepository           = (*PostgresAdapter)(nil)
	_ port.ProductRepository            = (*PostgresAdapter)(nil)
	_ port.TransactionalOrderRepository = (*PostgresAdapter)(nil)
	_ port.InventoryRepository          = (*PostgresAdapter)(nil)
	_ port.OrderCanceller               = (*PostgresAdapter)(nil)
)
