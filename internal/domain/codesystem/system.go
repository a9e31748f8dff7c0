package codesystem

import (
	"fmt"
	"strings"
)

// System identifies the code namespace an entity lives in.
type System string

const (
	Local      System = "LOCAL"
	Normalized System = "RXNORM"
	NDC        System = "NDC"
	Universal  System = "UMLS"
	Generic    System = "GENERIC"
)

// FHIR coding system URIs.
const (
	SystemRxNorm = "http://www.nlm.nih.gov/research/umls/rxnorm"
	SystemNDC    = "http://hl7.org/fhir/sid/ndc"
	SystemSNOMED = "http://snomed.info/sct"
)

// Vocabulary names accepted by universal crosswalks.
const (
	VocabMEDRT    = "MED-RT"
	VocabNDFRT    = "NDFRT"
	VocabRxNorm   = "RXNORM"
	VocabSNOMEDUS = "SNOMEDCT_US"
	VocabCPT      = "CPT"
	VocabHCPCS    = "HCPCS"
)

var universalSources = map[string]string{
	VocabMEDRT:    "Medication Reference Terminology",
	VocabNDFRT:    "National Drug File - Reference Terminology",
	VocabRxNorm:   "RXNORM",
	VocabSNOMEDUS: "US Edition of SNOMED CT",
	VocabCPT:      "Current Procedural Terminology",
	VocabHCPCS:    "Healthcare Common Procedure Coding System",
}

var synonyms = map[string]System{
	"LOCAL":   Local,
	"RXNORM":  Normalized,
	"RXCUI":   Normalized,
	"NDC":     NDC,
	"UMLS":    Universal,
	"CUI":     Universal,
	"UMLSCUI": Universal,
	"GENERIC": Generic,
}

// All lists every system in a stable order.
func All() []System {
	return []System{Local, Normalized, NDC, Universal, Generic}
}

// Parse maps a code-type label from an input file onto a System.
// Matching is case-insensitive and accepts the common synonyms.
func Parse(label string) (System, error) {
	s, ok := synonyms[strings.ToUpper(strings.TrimSpace(label))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSystem, label)
	}
	return s, nil
}

func (s System) String() string { return string(s) }

// Valid reports whether s is one of the known systems.
func (s System) Valid() bool {
	switch s {
	case Local, Normalized, NDC, Universal, Generic:
		return true
	}
	return false
}

// FHIRSystem returns the FHIR coding system URI for s, or "" when the
// system has no public coding URI.
func (s System) FHIRSystem() string {
	switch s {
	case Normalized:
		return SystemRxNorm
	case NDC:
		return SystemNDC
	}
	return ""
}

// IsUniversalSource reports whether vocab may be used as the source or
// target of a universal crosswalk.
func IsUniversalSource(vocab string) bool {
	_, ok := universalSources[strings.ToUpper(vocab)]
	return ok
}

// VocabularyURI maps a crosswalk vocabulary name to its FHIR system URI.
func VocabularyURI(vocab string) string {
	switch strings.ToUpper(vocab) {
	case VocabRxNorm:
		return SystemRxNorm
	case "NDC":
		return SystemNDC
	case VocabSNOMEDUS:
		return SystemSNOMED
	}
	return ""
}
