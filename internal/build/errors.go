package build

import "errors"

// Sentinel errors for external tool failures. Wrapped with %w so callers can
// classify without string matching.
var (
	ErrCompilerNotFound  = errors.New("literate-doc compiler binary not found")
	ErrCompilerFailed    = errors.New("literate-doc compiler execution failed")
	ErrConverterNotFound = errors.New("document converter binary not found")
	ErrConversionFailed  = errors.New("document conversion failed")
	ErrSourceDirMissing  = errors.New("source directory does not exist")
	ErrPublishFailed     = errors.New("publish step failed")
)
