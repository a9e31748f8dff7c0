package pgstore

import (
	"context"
	"fmt"

	"github.com/ehr/medxwalk/internal/adapter/catalog"
	"github.com/ehr/medxwalk/internal/domain/crosswalk"
	"github.com/ehr/medxwalk/internal/platform/db"
)

// SeedStats counts the rows written by Seed.
type SeedStats struct {
	Concepts   int `json:"concepts"`
	Relations  int `json:"relations"`
	Histories  int `json:"histories"`
	Crosswalks int `json:"crosswalks"`
}

// Seed copies a catalog into the reference tables in one transaction.
// Existing rows for the same keys are overwritten.
func (s *Store) Seed(ctx context.Context, c *catalog.Catalog) (SeedStats, error) {
	var st SeedStats
	err := db.WithTx(ctx, s.pool, func(ctx context.Context) error {
		q := s.conn(ctx)
		for _, provider := range catalog.Providers() {
			system, _ := catalog.SystemOf(provider)
			for _, e := range c.Provider(provider).Entries() {
				if _, err := q.Exec(ctx, `
					INSERT INTO reference_concepts (system, provider, code, name, status, tty)
					VALUES ($1,$2,$3,$4,$5,$6)
					ON CONFLICT (system, provider, code)
					DO UPDATE SET name = EXCLUDED.name, status = EXCLUDED.status, tty = EXCLUDED.tty, updated_at = NOW()`,
					string(system), provider, e.Code, e.Name, e.Status, e.TermType); err != nil {
					return fmt.Errorf("seed concept %s/%s: %w", provider, e.Code, err)
				}
				st.Concepts++

				for _, rel := range relationsOf(e) {
					if _, err := q.Exec(ctx, `
						INSERT INTO reference_relations (system, provider, code, kind, qualifier, related_code)
						VALUES ($1,$2,$3,$4,$5,$6)
						ON CONFLICT DO NOTHING`,
						string(system), provider, e.Code, rel.kind, rel.qualifier, rel.code); err != nil {
						return fmt.Errorf("seed relation %s/%s: %w", provider, e.Code, err)
					}
					st.Relations++
				}

				if e.History != nil {
					ings := e.History.Ingredients
					if ings == nil {
						ings = []string{}
					}
					if _, err := q.Exec(ctx, `
						INSERT INTO reference_history (system, provider, code, name, tty, ingredients)
						VALUES ($1,$2,$3,$4,$5,$6)
						ON CONFLICT (system, provider, code)
						DO UPDATE SET name = EXCLUDED.name, tty = EXCLUDED.tty, ingredients = EXCLUDED.ingredients`,
						string(system), provider, e.Code, e.History.Name, e.History.TermType, ings); err != nil {
						return fmt.Errorf("seed history %s/%s: %w", provider, e.Code, err)
					}
					st.Histories++
				}
			}
		}

		for _, m := range c.Mappings() {
			for _, t := range m.Terms {
				if _, err := q.Exec(ctx, `
					INSERT INTO reference_crosswalks (source, target, code, term_code, term_name, term_status, cui)
					VALUES ($1,$2,$3,$4,$5,$6,$7)
					ON CONFLICT (source, target, code, term_code)
					DO UPDATE SET term_name = EXCLUDED.term_name, term_status = EXCLUDED.term_status, cui = EXCLUDED.cui`,
					m.Source, m.Target, m.Code, t.Code, t.Name, t.Status, t.CUI); err != nil {
					return fmt.Errorf("seed crosswalk %s->%s %s: %w", m.Source, m.Target, m.Code, err)
				}
				st.Crosswalks++
			}
		}
		return nil
	})
	if err != nil {
		return SeedStats{}, err
	}
	return st, nil
}

type relation struct {
	kind, qualifier, code string
}

// relationsOf flattens the relation maps of a catalog entry.
func relationsOf(e catalog.Entry) []relation {
	var out []relation
	for tty, codes := range e.Ingredients {
		for _, c := range codes {
			out = append(out, relation{kindIngredient, tty, c})
		}
	}
	for _, c := range e.Remaps {
		out = append(out, relation{kindRemap, "", c})
	}
	for target, codes := range e.Linked {
		for _, c := range codes {
			out = append(out, relation{kindLinked, crosswalk.Key(target), c})
		}
	}
	return out
}
