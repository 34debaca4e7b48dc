package audit

import (
	"github.com/threattrace/threattrace/internal/model"
)

// VerifyResult is the outcome of walking a chain segment.
type VerifyResult struct {
	OK       bool   `json:"ok"`
	Checked  int    `json:"checked"`
	BadSeq   int64  `json:"badSeq,omitempty"`
	BadEvent string `json:"badEventId,omitempty"`
	Problem  string `json:"problem,omitempty"`
}

// VerifyChain walks events in ascending chain order, recomputing every hash
// and checking each entry's linkage to its predecessor. The first entry's
// prev_hash must be the genesis sentinel. On tampering the result names the
// first entry whose stored state no longer matches, never an earlier one.
func VerifyChain(events []model.AuditEvent) VerifyResult {
	prevHash := model.GenesisHash
	for i := range events {
		e := &events[i]
		if e.PrevHash != prevHash {
			return VerifyResult{
				Checked:  i,
				BadSeq:   e.Seq,
				BadEvent: e.EventID,
				Problem:  "prev_hash does not match predecessor's event_hash",
			}
		}
		if ChainHash(e.PrevHash, e) != e.EventHash {
			return VerifyResult{
				Checked:  i,
				BadSeq:   e.Seq,
				BadEvent: e.EventID,
				Problem:  "stored event_hash does not match recomputed hash",
			}
		}
		prevHash = e.EventHash
	}
	return VerifyResult{OK: true, Checked: len(events)}
}
