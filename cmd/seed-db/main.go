package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/address"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/product"
	"github.com/xenking/storefront-checkout/internal/storage/postgres"
)

type catalogJSON struct {
	Products []struct {
		ID       string          `json:"id"`
		Name     string          `json:"name"`
		Price    decimal.Decimal `json:"price"`
		Category string          `json:"category"`
		Image    string          `json:"image"`
	} `json:"products"`
	Addresses []struct {
		ID         string `json:"id"`
		UserID     string `json:"userId"`
		FullName   string `json:"fullName"`
		Phone      string `json:"phone"`
		Line1      string `json:"line1"`
		Line2      string `json:"line2"`
		City       string `json:"city"`
		State      string `json:"state"`
		PostalCode string `json:"postalCode"`
		Country    string `json:"country"`
	} `json:"addresses"`
}

func main() {
	var (
		databaseURL string
		catalogFile string
		demoCoupons bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file")
	flag.BoolVar(&demoCoupons, "demo-coupons", true, "seed demo coupons")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile, demoCoupons); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, catalogFile string, demoCoupons bool) error {
	seed, err := readCatalog(catalogFile)
	if err != nil {
		return err
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL, 4)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	products := postgres.NewProductRepository(pool)
	for _, p := range seed.Products {
		if err := products.Upsert(ctx, p); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}

	addresses := postgres.NewAddressRepository(pool)
	for _, a := range seed.Addresses {
		if err := addresses.Upsert(ctx, a); err != nil {
			return errors.Wrapf(err, "upsert address %s", a.ID)
		}
		slog.Info("upserted address", slog.String("id", a.ID), slog.String("user_id", a.UserID))
	}

	if !demoCoupons {
		return nil
	}

	coupons := postgres.NewCouponRepository(pool)
	for _, c := range demoCouponSet(time.Now()) {
		if err := coupons.Upsert(ctx, c); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
		slog.Info("upserted coupon", slog.String("code", c.Code), slog.String("title", c.Title))
	}

	return nil
}

type catalog struct {
	Products  []product.Product
	Addresses []address.Address
}

func readCatalog(path string) (*catalog, error) {
	slog.Info("reading catalog file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog file")
	}

	var raw catalogJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse catalog JSON")
	}

	out := &catalog{}
	for _, p := range raw.Products {
		if p.ID == "" || p.Price.IsNegative() {
			return nil, errors.Errorf("invalid product %q", p.ID)
		}
		out.Products = append(out.Products, product.Product{
			ID:         p.ID,
			Name:       p.Name,
			Price:      p.Price,
			CategoryID: p.Category,
			Image:      p.Image,
		})
	}
	for _, a := range raw.Addresses {
		addr := address.Address{
			ID:         a.ID,
			UserID:     a.UserID,
			FullName:   a.FullName,
			Phone:      a.Phone,
			Line1:      a.Line1,
			Line2:      a.Line2,
			City:       a.City,
			State:      a.State,
			PostalCode: a.PostalCode,
			Country:    a.Country,
		}
		if err := addr.Validate(); err != nil {
			return nil, errors.Wrapf(err, "address %s", a.ID)
		}
		out.Addresses = append(out.Addresses, addr)
	}
	return out, nil
}

func demoCouponSet(now time.Time) []*coupon.Coupon {
	end := now.AddDate(0, 3, 0).UTC().Truncate(time.Hour)
	return []*coupon.Coupon{
		{
			ID:          "demo-save10",
			Code:        "SAVE10",
			Title:       "10% off",
			Description: "10% off orders above Rs.1500, up to Rs.500",
			Type:        coupon.TypePercent,
			Scope:       coupon.ScopeAll,
			Value:       10,
			MaxDiscount: 50000,
			MinOrder:    150000,
			EndAt:       &end,
			Status:      coupon.StatusActive,
		},
		{
			ID:               "demo-flat200",
			Code:             "FLAT200",
			Title:            "Rs.200 off",
			Description:      "Flat Rs.200 off, once per customer",
			Type:             coupon.TypeFlat,
			Scope:            coupon.ScopeAll,
			Value:            20000,
			MinOrder:         100000,
			MaxUsesPerUser:   1,
			GlobalUsageLimit: 1000,
			Status:           coupon.StatusActive,
		},
		{
			ID:          "demo-freeship",
			Code:        "FREESHIP",
			Title:       "Free shipping",
			Description: "Shipping on us",
			Type:        coupon.TypeFreeShip,
			Scope:       coupon.ScopeAll,
			Status:      coupon.StatusActive,
		},
	}
}
