package medication

import (
	"context"

	"github.com/ehr/medxwalk/internal/domain/codesystem"
)

// Attributes is the base record a code system returns for one code.
type Attributes struct {
	Valid    bool   `json:"valid" yaml:"valid"`
	Name     string `json:"name,omitempty" yaml:"name"`
	Status   string `json:"status,omitempty" yaml:"status"`
	TermType string `json:"tty,omitempty" yaml:"tty"`
}

// History is the historical lineage of a concept that is no longer live.
// Ingredients holds the base concepts the retired concept resolved to.
type History struct {
	Name        string   `json:"name,omitempty" yaml:"name"`
	TermType    string   `json:"tty,omitempty" yaml:"tty"`
	Ingredients []string `json:"ingredients,omitempty" yaml:"ingredients"`
}

// Adapter translates entity operations into calls against one code
// system. A nil *Attributes or *History with a nil error means the code
// system has no record for the code.
type Adapter interface {
	Validate(ctx context.Context, code string) (bool, error)
	FetchBase(ctx context.Context, code string) (*Attributes, error)
	// FetchIngredients returns ingredient codes grouped by relation (term
	// type) from the live relationship data.
	FetchIngredients(ctx context.Context, code string) (map[string][]string, error)
	FetchRemaps(ctx context.Context, code string) ([]string, error)
	FetchHistory(ctx context.Context, code string) (*History, error)
	FetchLinked(ctx context.Context, code, target string) ([]string, error)
}

// Adapters maps each code system to the adapter that resolves it.
// LOCAL and GENERIC entities have no adapter.
type Adapters map[codesystem.System]Adapter
