package walletwatch

import (
	"encoding/json"
	"sort"

	"github.com/ggoodman/walletwatch/fanout"
	"github.com/ggoodman/walletwatch/wallet"
)

// OutcomeRecord is the serialisable form of one outcome.
type OutcomeRecord struct {
	OutPoint  string  `json:"outpoint"`
	Value     uint64  `json:"value"`
	Status    string  `json:"status"`
	Events    int     `json:"events"`
	Error     string  `json:"error,omitempty"`
	ElapsedMS float64 `json:"elapsed_ms"`
}

// Records lists outcomes in the order the resources were listed, one per
// listed resource.
func (r *Report) Records() []OutcomeRecord {
	if r.ordered != nil && len(r.ordered) == len(r.Resources) {
		out := make([]OutcomeRecord, len(r.Resources))
		for i, u := range r.Resources {
			out[i] = record(u.OutPoint, u.Value, r.ordered[i])
		}
		return out
	}

	seen := make(map[wallet.OutPoint]bool, len(r.Resources))
	out := make([]OutcomeRecord, 0, len(r.Outcomes))
	for _, u := range r.Resources {
		if seen[u.OutPoint] {
			continue
		}
		seen[u.OutPoint] = true
		o, ok := r.Outcomes[u.OutPoint]
		if !ok {
			continue
		}
		out = append(out, record(u.OutPoint, u.Value, o))
	}
	// Outcomes without a listed resource only appear in hand-built reports.
	var extra []wallet.OutPoint
	for op := range r.Outcomes {
		if !seen[op] {
			extra = append(extra, op)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].String() < extra[j].String() })
	for _, op := range extra {
		out = append(out, record(op, 0, r.Outcomes[op]))
	}
	return out
}

func record(op wallet.OutPoint, value uint64, o fanout.Outcome) OutcomeRecord {
	rec := OutcomeRecord{
		OutPoint:  op.String(),
		Value:     value,
		Status:    o.Status.String(),
		Events:    o.Events,
		ElapsedMS: float64(o.Elapsed.Microseconds()) / 1000,
	}
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}
	return rec
}

func (r *Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		RunID            string          `json:"run_id"`
		Summary          fanout.Summary  `json:"summary"`
		Outcomes         []OutcomeRecord `json:"outcomes"`
		ConnectionUsable bool            `json:"connection_usable"`
		ElapsedMS        float64         `json:"elapsed_ms"`
	}{
		RunID:            r.RunID,
		Summary:          r.Summary,
		Outcomes:         r.Records(),
		ConnectionUsable: r.ConnectionUsable,
		ElapsedMS:        float64(r.Elapsed.Microseconds()) / 1000,
	})
}
