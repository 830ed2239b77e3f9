// Package identifiers allocates human readable, collision free identifiers
// for record families (table + column) under a small set of naming schemes.
//
// The generator reads current state on every call and is not safe against
// two callers allocating in the same family at once; callers serialize
// allocation per family key and rely on a unique constraint at commit time.
package identifiers

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Family scopes an identifier sequence.
type Family struct {
	Table  string
	Column string
}

func (f Family) String() string { return f.Table + "." + f.Column }

// Lookup returns every value of the family's column that starts with prefix.
type Lookup interface {
	MatchPrefix(ctx context.Context, f Family, prefix string) ([]string, error)
}

// Allocation is the outcome of one Next call.
type Allocation struct {
	ID       string
	Degraded bool // fallback id was used
}

type Generator struct {
	lookup Lookup
	now    func() time.Time
	log    zerolog.Logger
}

type Option func(*Generator)

func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func WithLogger(l zerolog.Logger) Option {
	return func(g *Generator) { g.log = l }
}

func NewGenerator(lookup Lookup, opts ...Option) *Generator {
	g := &Generator{
		lookup: lookup,
		now:    time.Now,
		log:    log.With().Str("component", "identifiers").Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Now exposes the generator clock so date based schemes line up with fallbacks.
func (g *Generator) Now() time.Time { return g.now() }

// Next allocates the successor id for s within f. Lookup or parse failures
// never surface to the caller: they degrade to s.Fallback.
func (g *Generator) Next(ctx context.Context, f Family, s Scheme) Allocation {
	existing, err := g.lookup.MatchPrefix(ctx, f, s.Prefix())
	if err != nil {
		return g.degrade(f, s, fmt.Errorf("lookup: %w", err))
	}
	OrderCandidates(existing)

	id, err := s.Next(existing)
	if err != nil {
		return g.degrade(f, s, err)
	}
	if slices.Contains(existing, id) {
		return g.degrade(f, s, fmt.Errorf("computed id %q already taken", id))
	}
	return Allocation{ID: id}
}

func (g *Generator) degrade(f Family, s Scheme, cause error) Allocation {
	id := s.Fallback(g.now())
	g.log.Warn().
		Err(cause).
		Str("family", f.String()).
		Str("prefix", s.Prefix()).
		Str("fallback_id", id).
		Bool("degraded", true).
		Msg("identifier allocation degraded to timestamp fallback")
	return Allocation{ID: id, Degraded: true}
}

// OrderCandidates sorts ids max-first: longer ids first, then descending
// lexical order, which puts the numerically largest sequence in front.
func OrderCandidates(ids []string) {
	slices.SortFunc(ids, func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(b, a)
	})
}

// ---------------------------------------------------------------------------
// gorm lookup
// ---------------------------------------------------------------------------

// GormLookup reads families from SQL tables. Table and column come from code
// constants, never from request input.
type GormLookup struct {
	DB *gorm.DB
}

func (l GormLookup) MatchPrefix(ctx context.Context, f Family, prefix string) ([]string, error) {
	var out []string
	err := l.DB.WithContext(ctx).
		Table(f.Table).
		Where(f.Column+` LIKE ? ESCAPE '\'`, EscapeLike(prefix)+"%").
		Order("LENGTH(" + f.Column + ") DESC, " + f.Column + " DESC").
		Pluck(f.Column, &out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// IsUniqueViolation reports a primary key or unique index conflict.
func IsUniqueViolation(err error) bool {
	return err != nil &&
		(errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(err.Error(), "duplicate key value") ||
			strings.Contains(err.Error(), "unique constraint"))
}

// EscapeLike escapes LIKE wildcards so a prefix matches literally.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
