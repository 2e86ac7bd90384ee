package vm

import (
	"context"
	"encoding/json"

	"github.com/jbweber/anvil/internal/script"
)

// Stats runs get_vm_stats.sh for instance id and returns its output, which
// must be a JSON document. The document is returned as-is.
func (m *Manager) Stats(ctx context.Context, id uint) (json.RawMessage, error) {
	var doc json.RawMessage
	err := m.track(ctx, "stats", func(ctx context.Context) error {
		inst, err := m.lookup(ctx, id)
		if err != nil {
			return err
		}

		res := m.runner.Run(ctx, script.Stats, inst.Name)
		if !res.Success {
			return newExternalError(res)
		}

		if !json.Valid([]byte(res.Stdout)) {
			return &StatsParseError{Raw: res.Stdout}
		}
		doc = json.RawMessage(res.Stdout)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}
