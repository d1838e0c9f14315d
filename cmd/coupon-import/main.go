// Command coupon-import loads coupon definitions from gzip-compressed JSON
// lines files into PostgreSQL. Files are parsed concurrently; the import is
// refused as a whole when any line is invalid or a code is defined twice.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/storage/postgres"
	"github.com/xenking/storefront-checkout/internal/wire"
)

const maxLineBytes = 1 << 20

// lineError locates an invalid definition.
type lineError struct {
	file string
	line int
	err  error
}

func main() {
	var (
		pattern     string
		databaseURL string
		dryRun      bool
	)

	flag.StringVar(&pattern, "files", "data/coupons/*.jsonl.gz", "glob of gzip JSON lines files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&dryRun, "dry-run", false, "validate files without writing")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, pattern, databaseURL, dryRun); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed successfully")
}

func run(ctx context.Context, pattern, databaseURL string, dryRun bool) error {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return errors.Wrap(err, "expand pattern")
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %q", pattern)
	}
	sort.Strings(files)

	coupons, bad, err := parseFiles(ctx, files)
	if err != nil {
		return err
	}
	for _, le := range bad {
		slog.Error("invalid coupon definition",
			slog.String("file", le.file),
			slog.Int("line", le.line),
			slog.String("error", le.err.Error()),
		)
	}
	if len(bad) > 0 {
		return errors.Errorf("%d invalid definitions", len(bad))
	}

	slog.Info("parsed coupon definitions", slog.Int("files", len(files)), slog.Int("coupons", len(coupons)))
	if dryRun {
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL, 4)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := postgres.NewCouponRepository(pool)
	for i, c := range coupons {
		if err := repo.Upsert(ctx, c); err != nil {
			return err
		}
		if (i+1)%100 == 0 || i+1 == len(coupons) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(coupons)))
		}
	}
	return nil
}

// parseFiles decodes every file concurrently and merges the results in
// file order. Codes defined more than once are reported as line errors.
func parseFiles(ctx context.Context, files []string) ([]*coupon.Coupon, []lineError, error) {
	type result struct {
		coupons []*coupon.Coupon
		lines   []int
		bad     []lineError
	}
	results := make([]result, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			return streamGzLines(ctx, path, func(n int, line []byte) {
				c, err := wire.DecodeCouponDefinition(line)
				if err != nil {
					results[i].bad = append(results[i].bad, lineError{file: path, line: n, err: err})
					return
				}
				if c.ID == "" {
					c.ID = stableID(c.Code)
				}
				results[i].coupons = append(results[i].coupons, c)
				results[i].lines = append(results[i].lines, n)
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var (
		out  []*coupon.Coupon
		bad  []lineError
		seen = make(map[string]string)
	)
	for i, r := range results {
		bad = append(bad, r.bad...)
		for j, c := range r.coupons {
			if first, dup := seen[c.Code]; dup {
				bad = append(bad, lineError{
					file: files[i],
					line: r.lines[j],
					err:  errors.Errorf("code %s already defined in %s", c.Code, first),
				})
				continue
			}
			seen[c.Code] = files[i]
			out = append(out, c)
		}
	}
	return out, bad, nil
}

// stableID derives the coupon id from its code so re-imports keep it.
func stableID(code string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("coupon:"+code)).String()
}

// streamGzLines calls fn for each non-empty line of a gzip file.
func streamGzLines(ctx context.Context, path string, fn func(n int, line []byte)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64<<10), maxLineBytes)
	n := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		n++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		fn(n, scanner.Bytes())
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
