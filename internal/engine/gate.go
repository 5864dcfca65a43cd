package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/atlasprocure/caseflow/internal/domain"
	"github.com/atlasprocure/caseflow/internal/store"
)

// requiresHuman decides whether the step's result must stop at the human
// gate. Precedence: explicit policy listing, then declared materiality,
// then the fixed stage decision points.
func requiresHuman(result *domain.Result, stage domain.Stage, pctx domain.PolicyContext) (string, bool) {
	for _, item := range pctx.HumanRequiredFor {
		if item == string(stage) {
			return "stage listed in policy human_required_for", true
		}
	}

	if result != nil && !result.Fallback {
		switch result.Impact() {
		case domain.ImpactHigh:
			return "high-impact decision", true
		case domain.ImpactMedium:
			if stage == domain.StageNegotiation || stage == domain.StageExecution {
				return "medium-impact decision at " + string(stage), true
			}
		}
	}

	// Negotiation mandates and savings sign-off are always human decisions.
	if stage == domain.StageNegotiation || stage == domain.StageExecution {
		return "stage " + string(stage) + " always requires approval", true
	}

	if stage == domain.StageStrategy && result != nil && result.Kind == domain.KindStrategy && !result.Fallback {
		return "strategy recommendations require approval", true
	}

	return "", false
}

// buildSnapshot serializes the minimal resume state with a content checksum.
func (e *Engine) buildSnapshot(state *domain.CaseState, pctx domain.PolicyContext, cacheKey, inputHash string) (*store.SnapshotRow, error) {
	snap := domain.CaseSnapshot{
		CaseID:       state.CaseID,
		Stage:        state.Stage,
		Status:       state.Status,
		Summary:      state.Summary,
		LatestResult: state.LatestResult,
		Policy:       pctx,
		Budget:       state.Budget,
		CacheKey:     cacheKey,
		InputHash:    inputHash,
		CreatedAt:    e.nowFn(),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreWrite.Code, "marshal snapshot", err)
	}
	return &store.SnapshotRow{
		CaseID:       state.CaseID,
		Stage:        state.Stage,
		SnapshotJSON: string(data),
		Checksum:     snapshotChecksum(data),
		CreatedAt:    snap.CreatedAt,
	}, nil
}

// decodeSnapshot verifies the checksum and deserializes the snapshot.
func decodeSnapshot(row *store.SnapshotRow) (*domain.CaseSnapshot, error) {
	if snapshotChecksum([]byte(row.SnapshotJSON)) != row.Checksum {
		return nil, domain.ErrSnapshotCorrupt
	}
	var snap domain.CaseSnapshot
	if err := json.Unmarshal([]byte(row.SnapshotJSON), &snap); err != nil {
		return nil, domain.WrapEngineError(domain.ErrSnapshotCorrupt.Code, "decode snapshot", err)
	}
	return &snap, nil
}

func snapshotChecksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
