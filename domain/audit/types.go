package audit

import (
	"encoding/json"
	"fmt"

	"iaicore/domain/core"
	"iaicore/domain/invariant"
	"iaicore/domain/proposal"
	"iaicore/domain/verdict"
)

// Record is the single durable artifact of one generation. The audit log of
// Records is append-only and is the sole source of truth for what happened
// when: the resulting invariant set embedded here, not any in-memory state,
// defines what is active for the next generation.
type Record struct {
	Generation core.Generation `json:"generation"`
	RunID      core.RunID      `json:"run_id"`
	Timestamp  core.Timestamp  `json:"timestamp"`

	ActiveVersion core.InvariantVersion `json:"active_version"`
	EvidenceIDs   []core.EvidenceID     `json:"evidence_ids,omitempty"`
	Proposals     proposal.Set          `json:"proposals"`
	Verdicts      []verdict.Verdict     `json:"verdicts"`

	// ResultingSet is the binding invariant set after APPLY_OR_HOLD. Equal
	// version to ActiveVersion means the generation held.
	ResultingSet invariant.Set `json:"resulting_set"`

	// Failure describes a fatal error when the record closes a terminated
	// run; empty on normal generations.
	Failure string `json:"failure,omitempty"`

	// Chain hashing makes the log tamper-evident: each record's hash covers
	// its payload and the previous record's hash.
	PrevHash core.Hash `json:"prev_hash"`
	Hash     core.Hash `json:"hash"`
}

// Seal computes and sets the record's chain hash from its payload and the
// previous record's hash. Must be called exactly once, before the record is
// written to a sink.
func (r *Record) Seal(prev core.Hash) error {
	r.PrevHash = prev
	r.Hash = ""
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("seal audit record: %w", err)
	}
	r.Hash = core.ChainHash(prev, payload)
	return nil
}

// VerifyAgainst recomputes the record's hash and checks it links to prev.
func (r Record) VerifyAgainst(prev core.Hash) error {
	if r.PrevHash != prev {
		return fmt.Errorf("%w: generation %d links to %s, expected %s", core.ErrChainBroken, r.Generation, r.PrevHash, prev)
	}
	stored := r.Hash
	r.Hash = ""
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("verify audit record: %w", err)
	}
	if computed := core.ChainHash(prev, payload); computed != stored {
		return fmt.Errorf("%w: generation %d hash mismatch", core.ErrChainBroken, r.Generation)
	}
	return nil
}

// VerifyChain checks hash linkage across an ordered record sequence.
func VerifyChain(records []Record) error {
	prev := core.GenesisHash
	for _, r := range records {
		if err := r.VerifyAgainst(prev); err != nil {
			return err
		}
		prev = r.Hash
	}
	return nil
}

// Replay reconstructs the active invariant set from the audit log. Records
// must be ordered and contiguous from generation 0; the result of replaying
// a live run's log equals the run's final in-memory set.
func Replay(records []Record, bootstrap invariant.Set) (invariant.Set, error) {
	active := bootstrap
	for i, r := range records {
		if int(r.Generation) != i {
			return invariant.Set{}, fmt.Errorf("audit log not contiguous: record %d has generation %d", i, r.Generation)
		}
		if r.ActiveVersion != active.Version {
			return invariant.Set{}, fmt.Errorf("generation %d started from version %d, log implies %d", r.Generation, r.ActiveVersion, active.Version)
		}
		active = r.ResultingSet
	}
	return active, nil
}
