package ports

import (
	"context"

	"github.com/aretw0/osdl/pkg/domain"
)

// ActionDispatcher executes actions the runtime does not own (openModal,
// closeModal, submitData, ...). Params arrive already resolved.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, req domain.ActionRequest) error
}

// ErrorReporter is the host shell's error channel. Failures reported here never
// reach the render path.
type ErrorReporter interface {
	Report(ctx context.Context, err error)
}

// ErrorReporterFunc adapts a function to ErrorReporter.
type ErrorReporterFunc func(ctx context.Context, err error)

// Report calls f.
func (f ErrorReporterFunc) Report(ctx context.Context, err error) { f(ctx, err) }
