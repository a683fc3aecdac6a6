package main

import (
	"bufio"
	"context"
	"os"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"

	"github.com/xenking/storefront/internal/domain/coupon"
)

const maxCodeLen = 50

// dedupe admits each code once. The bloom filter answers most lookups for
// unseen codes; a hit is confirmed against the exact set.
type dedupe struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	seen   map[string]struct{}
	// confirmed counts bloom hits that were real duplicates.
	confirmed uint64
	// falseHits counts bloom hits for codes not seen before.
	falseHits uint64
}

func newDedupe(capacity uint, fpr float64) *dedupe {
	return &dedupe{
		filter: bloom.NewWithEstimates(capacity, fpr),
		seen:   make(map[string]struct{}),
	}
}

// Admit reports whether code has not been admitted before.
func (d *dedupe) Admit(code string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.filter.TestOrAddString(code) {
		if _, ok := d.seen[code]; ok {
			d.confirmed++
			return false
		}
		d.falseHits++
	}
	d.seen[code] = struct{}{}
	return true
}

// streamCodes reads a gzip-compressed file and calls fn for each normalized,
// non-empty code that fits the code column.
func streamCodes(ctx context.Context, path string, fn func(code string) error) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	var count uint64
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		code := coupon.NormalizeCode(scanner.Text())
		if code == "" || len(code) > maxCodeLen {
			continue
		}
		count++
		if err := fn(code); err != nil {
			return count, err
		}
	}
	if err := scanner.Err(); err != nil {
		return count, errors.Wrapf(err, "scan %s", path)
	}
	return count, nil
}
