package service

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	twinerrors "github.com/LemonScripter/metaspace-fdir-public/internal/errors"
	"github.com/LemonScripter/metaspace-fdir-public/internal/model"
)

func appendEntries(t *testing.T, log *AuditLog, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := log.Append(model.AuditEntry{
			Operation:        model.OperationRegeneration,
			Timestamp:        int64(1700000000 + i),
			MissionDay:       uint16(i),
			Feasibility:      80 + float64(i),
			Action:           model.ActionContinueWithMonitoring,
			Validated:        true,
			ValidationStatus: model.VerdictPassed,
			NodeStates:       map[model.NodeID]float64{model.NodeSTA: float64(i), model.NodeOBC: 100},
			Level3Hex:        "0x0000005000000228",
		})
		require.NoError(t, err)
	}
}

func TestAuditLog_GenesisAndLinks(t *testing.T) {
	log, err := NewAuditLog()
	require.NoError(t, err)
	assert.Equal(t, make([]byte, HashSize), log.Head())

	appendEntries(t, log, 3)
	entries := log.Entries()
	require.Len(t, entries, 3)

	assert.Equal(t, uint64(1), entries[0].Seq)
	assert.Equal(t, make([]byte, HashSize), entries[0].PrevHash)
	for i := 1; i < len(entries); i++ {
		assert.Equal(t, uint64(i+1), entries[i].Seq)
		assert.Equal(t, entries[i-1].Hash, entries[i].PrevHash)
		assert.Len(t, entries[i].Hash, HashSize)
	}
	assert.Equal(t, entries[2].Hash, log.Head())
	assert.NoError(t, log.Verify())
}

func TestAuditLog_Deterministic(t *testing.T) {
	a, err := NewAuditLog()
	require.NoError(t, err)
	b, err := NewAuditLog()
	require.NoError(t, err)

	appendEntries(t, a, 4)
	appendEntries(t, b, 4)
	assert.True(t, bytes.Equal(a.Head(), b.Head()), "canonical encoding must not depend on map order")
}

func TestAuditLog_DetectsTampering(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*model.AuditEntry)
		wantSeq uint64
	}{
		{"feasibility", func(e *model.AuditEntry) { e.Feasibility = 99 }, 2},
		{"node state", func(e *model.AuditEntry) { e.NodeStates[model.NodeSTA] = 42 }, 2},
		{"hash", func(e *model.AuditEntry) { e.Hash[0] ^= 0xFF }, 2},
		{"prev hash", func(e *model.AuditEntry) { e.PrevHash = make([]byte, HashSize) }, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := NewAuditLog()
			require.NoError(t, err)
			appendEntries(t, log, 3)

			tt.mutate(&log.entries[1])

			err = log.Verify()
			require.Error(t, err)
			assert.Equal(t, twinerrors.ErrCodeAuditChainBroken, twinerrors.GetCode(err))
			var te *twinerrors.TwinError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.wantSeq, te.Details["seq"])
		})
	}
}

func TestAuditLog_Reset(t *testing.T) {
	log, err := NewAuditLog()
	require.NoError(t, err)
	appendEntries(t, log, 2)

	log.Reset()
	assert.Equal(t, 0, log.Len())
	assert.Equal(t, make([]byte, HashSize), log.Head())
}
