package codesystem

import "strings"

// TermType is an RxNorm term type (TTY).
type TermType string

const (
	TTYBrandedDrug           TermType = "SBD"
	TTYClinicalDrug          TermType = "SCD"
	TTYIngredient            TermType = "IN"
	TTYMultiIngredient       TermType = "MIN"
	TTYPreciseIngredient     TermType = "PIN"
	TTYBrandName             TermType = "BN"
	TTYBrandedDrugComponent  TermType = "SBDC"
	TTYClinicalDrugComponent TermType = "SCDC"
	TTYDoseForm              TermType = "DF"
	TTYClinicalDoseFormGroup TermType = "SCDF"
	TTYBrandedDoseFormGroup  TermType = "SBDF"
	TTYGenericPack           TermType = "GPCK"
	TTYBrandedPack           TermType = "BPCK"
)

var termTypes = map[TermType]string{
	TTYBrandedDrug:           "Semantic Branded Drug",
	TTYClinicalDrug:          "Semantic Clinical Drug",
	TTYIngredient:            "Ingredient",
	TTYMultiIngredient:       "Multi-Ingredient",
	TTYPreciseIngredient:     "Precise Ingredient",
	TTYBrandName:             "Branded Name",
	TTYBrandedDrugComponent:  "Semantic Branded Drug Component",
	TTYClinicalDrugComponent: "Semantic Clinical Drug Component",
	TTYDoseForm:              "Dose Form",
	TTYClinicalDoseFormGroup: "Semantic Clinical Dose Form Group",
	TTYBrandedDoseFormGroup:  "Semantic Branded Dose Form Group",
	TTYGenericPack:           "Generic Pack",
	TTYBrandedPack:           "Branded Pack",
}

// ParseTermType upper-cases tty and reports whether it is supported.
func ParseTermType(tty string) (TermType, bool) {
	t := TermType(strings.ToUpper(strings.TrimSpace(tty)))
	_, ok := termTypes[t]
	return t, ok
}

// Description returns the human readable name of the term type.
func (t TermType) Description() string { return termTypes[t] }

// IsIngredient reports whether t is an ingredient-level term type.
func (t TermType) IsIngredient() bool {
	switch t {
	case TTYIngredient, TTYMultiIngredient, TTYPreciseIngredient:
		return true
	}
	return false
}

// FHIRValid reports whether concepts of this term type may be emitted as a
// Medication coding. Brand names and dose form groupings may not.
func (t TermType) FHIRValid() bool {
	switch t {
	case TTYBrandName, TTYDoseForm, TTYBrandedDoseFormGroup, TTYClinicalDoseFormGroup:
		return false
	}
	return true
}
