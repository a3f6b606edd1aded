// Package errors provides structured error handling for askdoc.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (documents, index files)
//   - 3XX: External collaborator errors (parser, embedder, stores)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates document and index file I/O errors.
	CategoryIO Category = "IO"
	// CategoryExternal indicates external collaborator errors.
	CategoryExternal Category = "EXTERNAL"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeDocumentLoad  = "ERR_201_DOCUMENT_LOAD"
	ErrCodeFileNotFound  = "ERR_202_FILE_NOT_FOUND"
	ErrCodeCorruptIndex  = "ERR_205_CORRUPT_INDEX"
	ErrCodeSnapshotWrite = "ERR_206_SNAPSHOT_WRITE"

	// External collaborator errors (300-399)
	ErrCodeParseTransient   = "ERR_301_PARSE_TRANSIENT"
	ErrCodeParseExhausted   = "ERR_302_PARSE_EXHAUSTED"
	ErrCodeStoreUnavailable = "ERR_303_STORE_UNAVAILABLE"
	ErrCodeEmbeddingFailed  = "ERR_304_EMBEDDING_FAILED"
	ErrCodeExpansionFailed  = "ERR_305_EXPANSION_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty   = "ERR_404_QUERY_EMPTY"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeSearchFailed = "ERR_503_SEARCH_FAILED"
	ErrCodeIndexFailed  = "ERR_505_INDEX_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryExternal
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode derives severity from error code.
// Corrupt index and transient parse errors are recoverable warnings; the
// rest default to ERROR. Document-level load failures are fatal for a job.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeParseTransient:
		return SeverityWarning
	case ErrCodeDocumentLoad:
		return SeverityFatal
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether operations failing with this code may be retried.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeParseTransient, ErrCodeStoreUnavailable, ErrCodeEmbeddingFailed:
		return true
	default:
		return false
	}
}
