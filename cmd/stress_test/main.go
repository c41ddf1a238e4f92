package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/fulfillment/internal/adapter/storage"
	"github.com/rl1809/fulfillment/internal/app"
	"github.com/rl1809/fulfillment/internal/core/domain"
	"github.com/rl1809/fulfillment/internal/core/service"
	"github.com/rl1809/fulfillment/internal/port"
)

const (
	initialStock  = 20
	totalRequests = 50
)

// Fires totalRequests concurrent single-unit sales at one product and checks
// that exactly initialStock of them succeed. Runs against MySQL when
// MYSQL_DSN is set, otherwise against the in-memory store.
func main() {
	ctx := context.Background()

	store, product, err := setup(ctx)
	if err != nil {
		log.Fatalf("setup failed: %v", err)
	}

	services, err := app.New(app.Options{
		Store:    store,
		TaxLabel: "VAT",
		TaxRate:  decimal.RequireFromString("0.10"),
		Currency: "USD",
	})
	if err != nil {
		log.Fatalf("wire services: %v", err)
	}

	var successCount atomic.Int32
	var soldOutCount atomic.Int32
	var failCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(customer int) {
			defer wg.Done()

			_, err := services.Orders.CreateOrder(ctx, orderCommand(customer, product.ID))
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientInventory):
				soldOutCount.Add(1)
			default:
				log.Printf("customer-%d: %v", customer, err)
				failCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold out:         %d\n", soldOut)
	fmt.Printf("Failed:           %d\n", failCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == int32(initialStock) && soldOut == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: exactly %d orders succeeded\n", initialStock)
	} else {
		fmt.Printf("FAIL: expected %d success/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, soldOut)
	}

	remaining, err := stockOf(ctx, store, product.ID)
	if err != nil {
		log.Fatalf("read final stock: %v", err)
	}
	fmt.Printf("Final Stock: %d\n", remaining)
	if remaining == 0 {
		fmt.Println("PASS: stock depleted to 0")
	} else {
		fmt.Printf("FAIL: expected stock 0, got %d\n", remaining)
	}
}

func setup(ctx context.Context) (port.Transactor, domain.Product, error) {
	stock := initialStock
	id := uuid.NewString()
	product := domain.Product{
		ID:             "stress-" + id,
		SKU:            "STRESS-" + id[:8],
		Name:           "Stress Item",
		Price:          decimal.RequireFromString("19.99"),
		Currency:       "USD",
		Type:           domain.ProductTypePhysical,
		InventoryCount: &stock,
		Status:         domain.ProductStatusActive,
	}

	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		store := storage.NewMemoryStore()
		store.SeedProduct(product)
		return store, product, nil
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, domain.Product{}, err
	}
	db.SetMaxOpenConns(50)
	if err := db.PingContext(ctx); err != nil {
		return nil, domain.Product{}, err
	}
	store := storage.NewMySQLAdapter(db)
	if err := store.EnsureSchema(ctx); err != nil {
		return nil, domain.Product{}, err
	}
	err = store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		return tx.Products().Save(ctx, product)
	})
	return store, product, err
}

func orderCommand(customer int, productID string) service.CreateOrderCommand {
	return service.CreateOrderCommand{
		CustomerID: fmt.Sprintf("customer-%d", customer),
		Items:      []service.SaleLine{{ProductID: productID, Quantity: 1}},
		ShippingAddress: domain.Address{
			Line1:   "1 Main St",
			City:    "Springfield",
			Country: "US",
		},
	}
}

func stockOf(ctx context.Context, store port.Transactor, productID string) (int, error) {
	var remaining int
	err := store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		products, err := tx.Products().FindByIDs(ctx, []string{productID})
		if err != nil {
			return err
		}
		if len(products) != 1 || products[0].InventoryCount == nil {
			return domain.ErrProductNotFound
		}
		remaining = *products[0].InventoryCount
		return nil
	})
	return remaining, err
}
