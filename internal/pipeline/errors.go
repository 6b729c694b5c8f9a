package pipeline

import (
	"errors"
	"fmt"
)

// Pipeline errors.
var (
	// ErrASTReuseMismatch indicates an asset carries an AST no stage can
	// reuse and no prior generator is available to regenerate code. Any
	// stage that produces an AST must also provide Generate.
	ErrASTReuseMismatch = errors.New("asset has an AST but no generator is available to regenerate code")

	// ErrNoPipeline indicates no configured glob matches a file path.
	ErrNoPipeline = errors.New("no pipeline configured for path")
)

// TransformerError wraps a stage failure with the stage name and the asset
// it was processing. Fatal to the request.
type TransformerError struct {
	Stage     string
	AssetPath string
	AssetType string
	Err       error
}

// Error implements the error interface.
func (e *TransformerError) Error() string {
	return fmt.Sprintf("transformer %s failed on %s (%s): %v", e.Stage, e.AssetPath, e.AssetType, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransformerError) Unwrap() error {
	return e.Err
}

// NewTransformerError creates a TransformerError.
func NewTransformerError(stage, assetPath, assetType string, err error) *TransformerError {
	return &TransformerError{
		Stage:     stage,
		AssetPath: assetPath,
		AssetType: assetType,
		Err:       err,
	}
}
