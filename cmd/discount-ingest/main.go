// Command discount-ingest imports candidate discount codes from gzipped code
// dumps supplied by marketing partners. A code is trusted only when it appears
// in at least two independent dumps; trusted codes are created as pending
// discounts awaiting review.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/oakmart/ordercore/internal/domain/actor"
	"github.com/oakmart/ordercore/internal/domain/discount"
	"github.com/oakmart/ordercore/internal/storage/postgres"
)

const (
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	minCodeLen    = 4
	maxCodeLen    = 32
)

var ingestActor = actor.Actor{ID: "discount-ingest", Role: actor.RoleStaff}

func main() {
	var (
		dataDir       string
		databaseURL   string
		numFiles      int
		bloomCapacity uint
		percent       int
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing codesN.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&numFiles, "files", 3, "number of codesN.gz files to read")
	flag.UintVar(&bloomCapacity, "bloom-capacity", 10_000_000, "expected codes per file")
	flag.IntVar(&percent, "percent", 10, "percent value for ingested discounts")
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

	if err := run(ctx, dataDir, databaseURL, numFiles, bloomCapacity, percent); err != nil {
		slog.Error("discount ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("discount ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, numFiles int, capacity uint, percent int) error {
	files := make([]string, numFiles)
	for i := range numFiles {
		files[i] = filepath.Join(dataDir, fmt.Sprintf("codes%d.gz", i+1))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	// Pass 1: one bloom filter per file, built concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("files", numFiles))

	filters, err := buildBloomFilters(ctx, files, capacity)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: keep codes that appear in at least two files.
	slog.Info("pass 2: finding trusted codes")

	trusted, err := findTrustedCodes(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "find trusted codes")
	}

	slog.Info("trusted codes found", slog.Int("count", len(trusted)))

	if len(trusted) == 0 {
		slog.Info("no codes to insert")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	repo := postgres.NewDiscountRepository(pool)
	admin := discount.NewAdminService(repo)

	return createPending(ctx, repo, admin, trusted, percent)
}

func buildBloomFilters(ctx context.Context, files []string, capacity uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(buildFilterForFile(ctx, i, f, capacity, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFile(ctx context.Context, idx int, path string, capacity uint, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(capacity, bloomFPR)
		var count uint64

		if err := streamGzFile(ctx, path, func(code string) {
			if len(code) >= minCodeLen && len(code) <= maxCodeLen {
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress",
						slog.Int("file", idx+1),
						slog.Uint64("codes", count),
					)
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for file %d", idx+1)
		}

		slog.Info("pass 1 complete",
			slog.Int("file", idx+1),
			slog.Uint64("total_codes", count),
		)

		filters[idx] = filter
		return nil
	}
}

// findTrustedCodes re-streams each file and checks codes against the OTHER
// files' bloom filters. A code is trusted if it appears in two or more files.
func findTrustedCodes(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]string, error) {
	results := make([]map[string]struct{}, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			found := make(map[string]struct{})

			if err := streamGzFile(ctx, f, func(code string) {
				if len(code) < minCodeLen || len(code) > maxCodeLen {
					return
				}
				for j, filter := range filters {
					if j != i && filter.TestString(code) {
						found[code] = struct{}{}
						return
					}
				}
			}); err != nil {
				return errors.Wrapf(err, "scan file %d", i+1)
			}

			results[i] = found
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]struct{})
	for _, found := range results {
		for code := range found {
			merged[code] = struct{}{}
		}
	}

	trusted := make([]string, 0, len(merged))
	for code := range merged {
		trusted = append(trusted, discount.NormalizeCode(code))
	}
	return trusted, nil
}

func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer f.Close()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "gzip reader")
	}
	defer gz.Close()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var n int
	for scanner.Scan() {
		if n++; n%4096 == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		fn(scanner.Text())
	}
	return errors.Wrap(scanner.Err(), "scan")
}

// createPending inserts each trusted code as a pending discount. Codes that
// already exist are skipped so re-running the ingest is safe.
func createPending(ctx context.Context, repo discount.Repository, admin *discount.AdminService, codes []string, percent int) error {
	now := time.Now().UTC()
	var created, skipped int

	for _, code := range codes {
		if _, err := repo.FindByCode(ctx, code); err == nil {
			skipped++
			continue
		} else if !errors.Is(err, discount.ErrNotFound) {
			return errors.Wrapf(err, "look up code %s", code)
		}

		_, err := admin.Create(ctx, discount.Params{
			Code:          code,
			Percent:       percent,
			MinOrderValue: decimal.Zero,
			StartDate:     now,
			EndDate:       now.AddDate(1, 0, 0),
		}, ingestActor)
		if err != nil {
			return errors.Wrapf(err, "create discount %s", code)
		}
		created++

		if created%10_000 == 0 {
			slog.Info("insert progress", slog.Int("created", created))
		}
	}

	slog.Info("pending discounts created",
		slog.Int("created", created),
		slog.Int("skipped", skipped),
	)
	return nil
}
