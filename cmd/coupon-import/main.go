package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
)

type options struct {
	databaseURL string
	pattern     string
	batchSize   int
	template    coupon.Coupon
}

func main() {
	var (
		opts       options
		kind       string
		value      string
		minimum    string
		maximum    string
		usageLimit int
		validDays  int
	)

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.pattern, "files", "data/*.gz", "glob of gzip-compressed code lists, one code per line")
	flag.IntVar(&opts.batchSize, "batch-size", 1000, "coupons upserted per batch")
	flag.StringVar(&kind, "kind", string(coupon.KindPercentage), "discount kind: percentage or fixed_amount")
	flag.StringVar(&value, "value", "10", "discount value")
	flag.StringVar(&minimum, "minimum-amount", "", "minimum order amount")
	flag.StringVar(&maximum, "maximum-discount", "", "discount cap")
	flag.IntVar(&usageLimit, "usage-limit", 1, "redemptions per code, 0 for unlimited")
	flag.IntVar(&validDays, "valid-days", 30, "days the codes stay valid")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}

	opts.template, err = templateCoupon(kind, value, minimum, maximum, usageLimit, validDays, time.Now().UTC())
	if err != nil {
		lg.Fatal("Invalid coupon rule", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Coupon import failed", zap.Error(err))
	}
	lg.Info("Coupon import completed")
}

// templateCoupon builds the rule every imported code shares.
func templateCoupon(kind, value, minimum, maximum string, usageLimit, validDays int, now time.Time) (coupon.Coupon, error) {
	c := coupon.Coupon{
		Code:       "TEMPLATE",
		Kind:       coupon.Kind(kind),
		ValidFrom:  now,
		ValidUntil: now.AddDate(0, 0, validDays),
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	var err error
	if c.Value, err = decimal.NewFromString(value); err != nil {
		return c, errors.Wrap(err, "parse value")
	}
	if minimum != "" {
		m, err := decimal.NewFromString(minimum)
		if err != nil {
			return c, errors.Wrap(err, "parse minimum amount")
		}
		c.MinimumAmount = &m
	}
	if maximum != "" {
		m, err := decimal.NewFromString(maximum)
		if err != nil {
			return c, errors.Wrap(err, "parse maximum discount")
		}
		c.MaximumDiscount = &m
	}
	if usageLimit > 0 {
		c.UsageLimit = &usageLimit
	}
	if err := coupon.Validate(&c); err != nil {
		return c, err
	}
	return c, nil
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	files, err := filepath.Glob(opts.pattern)
	if err != nil {
		return errors.Wrap(err, "match files")
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %q", opts.pattern)
	}

	pool, err := repository.NewPool(ctx, opts.databaseURL, int32(len(files))+1)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := repository.NewCouponRepository(repository.NewDB(pool))
	codes := make(chan string, opts.batchSize)
	seen := newDedupe(bloomCapacity, bloomFPR)

	g, gctx := errgroup.WithContext(ctx)
	readers, rctx := errgroup.WithContext(gctx)
	for _, path := range files {
		readers.Go(func() error {
			n, err := streamCodes(rctx, path, func(code string) error {
				if !seen.Admit(code) {
					return nil
				}
				select {
				case codes <- code:
					return nil
				case <-rctx.Done():
					return rctx.Err()
				}
			})
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}
			lg.Info("File read", zap.String("file", path), zap.Uint64("codes", n))
			return nil
		})
	}

	g.Go(func() error {
		defer close(codes)
		return readers.Wait()
	})
	g.Go(func() error {
		return writeCoupons(gctx, lg, repo, opts, codes)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	lg.Info("Duplicates skipped",
		zap.Uint64("confirmed", seen.confirmed),
		zap.Uint64("bloom_false_positives", seen.falseHits),
	)
	return nil
}

type upserter interface {
	Upsert(ctx context.Context, coupons []coupon.Coupon) error
}

// writeCoupons upserts codes in batches until the channel is closed.
func writeCoupons(ctx context.Context, lg *zap.Logger, repo upserter, opts options, codes <-chan string) error {
	batch := make([]coupon.Coupon, 0, opts.batchSize)
	var written int

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := repo.Upsert(ctx, batch); err != nil {
			return err
		}
		prev := written
		written += len(batch)
		if written/progressEvery != prev/progressEvery {
			lg.Info("Write progress", zap.Int("written", written))
		}
		batch = batch[:0]
		return nil
	}

	for code := range codes {
		c := opts.template
		c.ID = uuid.New()
		c.Code = code
		batch = append(batch, c)
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	lg.Info("Coupons written", zap.Int("count", written))
	return nil
}
