// Package errs defines the analysis error taxonomy: one typed error per
// kind, each recoverable or fatal per the propagation policy, all supporting
// errors.Is/As via Unwrap.
package errs

import (
	"fmt"
	"time"
)

// Kind names an error taxonomy entry, not a Go type — several
// kinds below share the same struct shape.
type Kind string

const (
	KindParseError              Kind = "parse_error"
	KindResolutionAmbiguity     Kind = "resolution_ambiguity"
	KindTypeEnrichmentTimeout   Kind = "type_enrichment_timeout"
	KindCacheMiss               Kind = "cache_miss"
	KindCacheCorruption         Kind = "cache_corruption"
	KindRuleCatalogError        Kind = "rule_catalog_error"
	KindStorageTransactionFail  Kind = "storage_transaction_failure"
	KindCancelRequested         Kind = "cancel_requested"
	KindInvariantViolation      Kind = "invariant_violation"

	// File-admission and configuration kinds used by discovery and the
	// incremental controller.
	KindFileNotFound Kind = "file_not_found"
	KindFileTooLarge Kind = "file_too_large"
	KindPermission   Kind = "permission"
	KindConfig       Kind = "config"
)

// StageError is the common shape for every recoverable per-file/per-stage
// error in the taxonomy. Fatal kinds (RuleCatalogError at startup,
// InvariantViolation) use the same struct; callers distinguish by Kind and
// by the Fatal flag.
type StageError struct {
	Kind       Kind
	File       string
	Operation  string
	Underlying error
	Timestamp  time.Time
	Fatal      bool
}

func newStageError(kind Kind, op string, err error) *StageError {
	return &StageError{Kind: kind, Operation: op, Underlying: err, Timestamp: time.Now()}
}

// WithFile attaches the file this error pertains to.
func (e *StageError) WithFile(path string) *StageError {
	e.File = path
	return e
}

// WithFatal marks the error as fatal (aborts the current snapshot cleanly,
// the previous snapshot remains intact).
func (e *StageError) WithFatal(fatal bool) *StageError {
	e.Fatal = fatal
	return e
}

func (e *StageError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: %s failed for %s: %v", e.Kind, e.Operation, e.File, e.Underlying)
	}
	return fmt.Sprintf("%s: %s failed: %v", e.Kind, e.Operation, e.Underlying)
}

func (e *StageError) Unwrap() error { return e.Underlying }

// IsRecoverable reports whether the pipeline should continue past this error
//.
func (e *StageError) IsRecoverable() bool { return !e.Fatal }

// NewParseError wraps a tree-sitter/parse failure. Parse errors are always
// recoverable: the file is kept with a partial tree and marked degraded,
// never aborting the pipeline.
func NewParseError(file string, err error) *StageError {
	return newStageError(KindParseError, "parse", err).WithFile(file)
}

// NewResolutionAmbiguity records an ambiguous cross-file resolution: the
// edge is tagged ambiguous=true rather than dropped, so this is always
// recoverable.
func NewResolutionAmbiguity(file, detail string) *StageError {
	return newStageError(KindResolutionAmbiguity, "resolve", fmt.Errorf("%s", detail)).WithFile(file)
}

// NewTypeEnrichmentTimeout records a language-server adapter timing out:
// type info is dropped and the file continues with typed=false.
func NewTypeEnrichmentTimeout(file string, after time.Duration) *StageError {
	return newStageError(KindTypeEnrichmentTimeout, "type_enrich", fmt.Errorf("timed out after %s", after)).WithFile(file)
}

// NewCacheMiss records a tier miss that falls through to recompute.
func NewCacheMiss(subjectID string) *StageError {
	return newStageError(KindCacheMiss, "cache_get", fmt.Errorf("miss for %s", subjectID))
}

// NewCacheCorruption records a corrupted on-disk cache entry; the entry is
// quarantined by the caller and the artifact is recomputed.
func NewCacheCorruption(subjectID string, err error) *StageError {
	return newStageError(KindCacheCorruption, "cache_get", err).WithFile(subjectID)
}

// NewRuleCatalogError records a malformed taint rule. fatal distinguishes
// "the whole catalog failed to load at startup" (fatal) from "one rule was
// invalid at runtime" (recoverable: that rule is simply ignored).
func NewRuleCatalogError(ruleID string, err error, fatal bool) *StageError {
	return newStageError(KindRuleCatalogError, "load_rule", err).WithFile(ruleID).WithFatal(fatal)
}

// NewStorageTransactionFailure records a failed batch write to a storage
// port after retries were exhausted.
func NewStorageTransactionFailure(op string, err error) *StageError {
	return newStageError(KindStorageTransactionFail, op, err)
}

// NewCancelRequested wraps a cancellation signal, which is always propagated
// upward immediately rather than collected.
func NewCancelRequested(stage string) *StageError {
	return newStageError(KindCancelRequested, stage, fmt.Errorf("cancellation requested"))
}

// NewInvariantViolation records a broken structural invariant: always
// fatal, and marks the snapshot poisoned.
func NewInvariantViolation(invariant, detail string) *StageError {
	return newStageError(KindInvariantViolation, invariant, fmt.Errorf("%s", detail)).WithFatal(true)
}

// MultiError aggregates multiple per-file errors into a snapshot's error
// summary.
type MultiError struct {
	Errors []error
}

// NewMultiError filters nils and returns the aggregate.
func NewMultiError(errors []error) *MultiError {
	filtered := make([]error, 0, len(errors))
	for _, e := range errors {
		if e != nil {
			filtered = append(filtered, e)
		}
	}
	return &MultiError{Errors: filtered}
}

func (m *MultiError) Error() string {
	switch len(m.Errors) {
	case 0:
		return "no errors"
	case 1:
		return m.Errors[0].Error()
	default:
		return fmt.Sprintf("%d errors (first: %v)", len(m.Errors), m.Errors[0])
	}
}

func (m *MultiError) Unwrap() []error { return m.Errors }

// HasFatal reports whether any aggregated error is fatal — if so, the
// snapshot the errors were collected for must be marked poisoned.
func (m *MultiError) HasFatal() bool {
	for _, e := range m.Errors {
		if se, ok := e.(*StageError); ok && se.Fatal {
			return true
		}
	}
	return false
}
