// Package pgstore serves code-system data from the reference tables in
// PostgreSQL.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/medxwalk/internal/domain/codesystem"
	"github.com/ehr/medxwalk/internal/domain/crosswalk"
	"github.com/ehr/medxwalk/internal/domain/medication"
	"github.com/ehr/medxwalk/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

const (
	kindIngredient = "ingredient"
	kindRemap      = "remap"
	kindLinked     = "linked"
)

// Store reads the reference tables.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

// Adapter returns the medication.Adapter for one (system, provider) pair.
func (s *Store) Adapter(system codesystem.System, provider string) *Source {
	return &Source{store: s, system: string(system), provider: provider}
}

// Translate implements crosswalk.Translator over reference_crosswalks.
func (s *Store) Translate(ctx context.Context, code, source, target string) ([]crosswalk.Term, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		SELECT term_code, term_name, term_status, cui
		FROM reference_crosswalks
		WHERE source = $1 AND target = $2 AND code = $3
		ORDER BY term_code`,
		crosswalk.Key(source), crosswalk.Key(target), code)
	if err != nil {
		return nil, fmt.Errorf("reference crosswalk query: %w", err)
	}
	defer rows.Close()

	var terms []crosswalk.Term
	for rows.Next() {
		t := crosswalk.Term{System: crosswalk.Key(target)}
		if err := rows.Scan(&t.Code, &t.Name, &t.Status, &t.CUI); err != nil {
			return nil, fmt.Errorf("reference crosswalk scan: %w", err)
		}
		terms = append(terms, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reference crosswalk rows: %w", err)
	}
	return terms, nil
}

// Source is the adapter for one provider of one code system.
type Source struct {
	store    *Store
	system   string
	provider string
}

func (a *Source) Provider() string { return a.provider }

func (a *Source) Validate(ctx context.Context, code string) (bool, error) {
	var ok bool
	err := a.store.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM reference_concepts WHERE system = $1 AND provider = $2 AND code = $3)`,
		a.system, a.provider, code).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("reference concept validate: %w", err)
	}
	return ok, nil
}

func (a *Source) FetchBase(ctx context.Context, code string) (*medication.Attributes, error) {
	attrs := medication.Attributes{Valid: true}
	err := a.store.conn(ctx).QueryRow(ctx, `
		SELECT name, status, tty FROM reference_concepts
		WHERE system = $1 AND provider = $2 AND code = $3`,
		a.system, a.provider, code).Scan(&attrs.Name, &attrs.Status, &attrs.TermType)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reference concept get: %w", err)
	}
	return &attrs, nil
}

func (a *Source) FetchIngredients(ctx context.Context, code string) (map[string][]string, error) {
	rows, err := a.relations(ctx, code, kindIngredient, "")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return groupByQualifier(rows)
}

func (a *Source) FetchRemaps(ctx context.Context, code string) ([]string, error) {
	rows, err := a.relations(ctx, code, kindRemap, "")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	grouped, err := groupByQualifier(rows)
	if err != nil {
		return nil, err
	}
	return grouped[""], nil
}

func (a *Source) FetchLinked(ctx context.Context, code, target string) ([]string, error) {
	target = crosswalk.Key(target)
	rows, err := a.relations(ctx, code, kindLinked, target)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	grouped, err := groupByQualifier(rows)
	if err != nil {
		return nil, err
	}
	return grouped[target], nil
}

// FetchLinkedFrom returns this provider's codes holding a link to code in
// the source system.
func (a *Source) FetchLinkedFrom(ctx context.Context, code, source string) ([]string, error) {
	rows, err := a.store.conn(ctx).Query(ctx, `
		SELECT code FROM reference_relations
		WHERE system = $1 AND provider = $2 AND kind = $3 AND qualifier = $4 AND related_code = $5
		ORDER BY code`,
		a.system, a.provider, kindLinked, crosswalk.Key(source), code)
	if err != nil {
		return nil, fmt.Errorf("reference reverse link query: %w", err)
	}
	defer rows.Close()
	return collectCodes(rows)
}

func (a *Source) FetchHistory(ctx context.Context, code string) (*medication.History, error) {
	var h medication.History
	err := a.store.conn(ctx).QueryRow(ctx, `
		SELECT name, tty, ingredients FROM reference_history
		WHERE system = $1 AND provider = $2 AND code = $3`,
		a.system, a.provider, code).Scan(&h.Name, &h.TermType, &h.Ingredients)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reference history get: %w", err)
	}
	return &h, nil
}

// relations queries one kind of relation. An empty qualifier matches all.
func (a *Source) relations(ctx context.Context, code, kind, qualifier string) (pgx.Rows, error) {
	query := `SELECT qualifier, related_code FROM reference_relations
		WHERE system = $1 AND provider = $2 AND code = $3 AND kind = $4`
	args := []interface{}{a.system, a.provider, code, kind}
	if qualifier != "" {
		query += ` AND qualifier = $5`
		args = append(args, qualifier)
	}
	query += ` ORDER BY qualifier, related_code`

	rows, err := a.store.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("reference %s query: %w", kind, err)
	}
	return rows, nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// groupByQualifier collects (qualifier, related_code) rows.
func groupByQualifier(rows rowScanner) (map[string][]string, error) {
	out := make(map[string][]string)
	for rows.Next() {
		var qualifier, related string
		if err := rows.Scan(&qualifier, &related); err != nil {
			return nil, fmt.Errorf("reference relation scan: %w", err)
		}
		out[qualifier] = append(out[qualifier], related)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reference relation rows: %w", err)
	}
	return out, nil
}

// collectCodes reads single-column code rows.
func collectCodes(rows rowScanner) ([]string, error) {
	var out []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("reference code scan: %w", err)
		}
		out = append(out, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reference code rows: %w", err)
	}
	return out, nil
}
