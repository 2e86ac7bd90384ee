package script

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/hashicorp/go-multierror"
)

// ResolveInterpreter returns the first candidate that answers a --version
// probe with exit status 0 within probeTimeout.
//
// Candidates may be bare names looked up on PATH or absolute paths. If none
// respond, the returned error wraps ErrInterpreterUnavailable and lists every
// probe failure.
func ResolveInterpreter(ctx context.Context, candidates []string, probeTimeout time.Duration) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates configured", ErrInterpreterUnavailable)
	}

	var probeErrs *multierror.Error
	for _, candidate := range candidates {
		if err := probe(ctx, candidate, probeTimeout); err != nil {
			probeErrs = multierror.Append(probeErrs, fmt.Errorf("%s: %w", candidate, err))
			continue
		}
		return candidate, nil
	}

	return "", fmt.Errorf("%w: %v", ErrInterpreterUnavailable, probeErrs.ErrorOrNil())
}

func probe(ctx context.Context, candidate string, timeout time.Duration) error {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, candidate, "--version")
	if err := cmd.Run(); err != nil {
		if probeCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("version probe timed out after %s", timeout)
		}
		return err
	}
	return nil
}
