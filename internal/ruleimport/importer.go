package ruleimport

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront-pricing/internal/domain/promotion"
)

const (
	bloomFPR    = 0.001
	maxLineSize = 1 << 20
)

// Writer persists imported rules.
type Writer interface {
	UpsertRule(ctx context.Context, rule promotion.Rule) error
}

// Config tunes an import run.
type Config struct {
	// Workers is the number of concurrent writers.
	Workers int
	// ExpectedRules sizes the duplicate-code filter.
	ExpectedRules uint
	// Progress, when set, is called after every ProgressEvery written rules.
	Progress      func(written int64)
	ProgressEvery int64
}

// Stats summarizes an import run.
type Stats struct {
	Read       int64
	Written    int64
	Duplicates int64
	Invalid    int64
}

// Importer streams rules from gzipped JSON-lines files into a Writer.
type Importer struct {
	cfg    Config
	writer Writer
	now    func() time.Time
}

// New creates an Importer.
func New(cfg Config, w Writer) *Importer {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.ExpectedRules == 0 {
		cfg.ExpectedRules = 1_000_000
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 10_000
	}
	return &Importer{cfg: cfg, writer: w, now: time.Now}
}

// Run imports every file in two passes. The first pass feeds coupon codes
// through a bloom filter to find codes that may repeat; the second decodes
// and writes rules, keeping only the first rule for each repeated code.
// Lines that fail to decode are counted and skipped.
func (im *Importer) Run(ctx context.Context, files []string) (Stats, error) {
	var stats Stats

	suspects, err := im.findSuspects(ctx, files)
	if err != nil {
		return stats, errors.Wrap(err, "scan codes")
	}

	rules := make(chan promotion.Rule, im.cfg.Workers*4)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(rules)
		seen := make(map[string]struct{}, len(suspects))
		for _, path := range files {
			err := streamGzFile(gctx, path, func(line []byte) error {
				atomic.AddInt64(&stats.Read, 1)
				rule, err := DecodeRule(line, im.now())
				if err != nil {
					atomic.AddInt64(&stats.Invalid, 1)
					return nil
				}
				if key := codeKey(rule.Code); key != "" {
					if _, suspect := suspects[key]; suspect {
						if _, dup := seen[key]; dup {
							atomic.AddInt64(&stats.Duplicates, 1)
							return nil
						}
						seen[key] = struct{}{}
					}
				}
				select {
				case rules <- rule:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}
		}
		return nil
	})

	for range im.cfg.Workers {
		g.Go(func() error {
			for rule := range rules {
				if err := im.writer.UpsertRule(gctx, rule); err != nil {
					return errors.Wrapf(err, "write rule %s", rule.ID)
				}
				n := atomic.AddInt64(&stats.Written, 1)
				if im.cfg.Progress != nil && n%im.cfg.ProgressEvery == 0 {
					im.cfg.Progress(n)
				}
			}
			return nil
		})
	}

	err = g.Wait()
	return stats, err
}

// findSuspects returns codes the bloom filter has seen more than once. False
// positives only cost an exact check in the second pass.
func (im *Importer) findSuspects(ctx context.Context, files []string) (map[string]struct{}, error) {
	filter := bloom.NewWithEstimates(im.cfg.ExpectedRules, bloomFPR)
	suspects := make(map[string]struct{})

	for _, path := range files {
		err := streamGzFile(ctx, path, func(line []byte) error {
			key := codeKey(peekCode(line))
			if key == "" {
				return nil
			}
			if filter.TestAndAddString(key) {
				suspects[key] = struct{}{}
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", path)
		}
	}
	return suspects, nil
}

// peekCode extracts the code field without decoding the whole rule.
func peekCode(line []byte) string {
	var code string
	_ = jx.DecodeBytes(line).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) == "code" && d.Next() == jx.String {
			s, err := d.Str()
			code = s
			return err
		}
		return d.Skip()
	})
	return code
}

func codeKey(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// streamGzFile opens a gzip-compressed file and calls fn for each non-empty line.
func streamGzFile(ctx context.Context, path string, fn func(line []byte) error) error {
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

	return streamLines(ctx, gz, fn)
}

func streamLines(ctx context.Context, r io.Reader, fn func(line []byte) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}
