package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildChain(t *testing.T, n int) []Event {
	t.Helper()
	var records []Event
	var prev [32]byte
	for i := 1; i <= n; i++ {
		rec, err := New(int64(i), "journal_entry:1", "posted", map[string]interface{}{"i": i}, prev, time.Unix(int64(i), 0))
		require.NoError(t, err)
		records = append(records, rec)
		prev = rec.EventHash
	}
	return records
}

func TestVerifyChainAccepts(t *testing.T) {
	records := buildChain(t, 5)
	assert.NoError(t, VerifyChain(records))
}

func TestVerifyChainDetectsGap(t *testing.T) {
	records := buildChain(t, 5)
	records = append(records[:2], records[3:]...) // drop seq 3
	err := VerifyChain(records)
	require.Error(t, err)
	var chainErr *ChainError
	require.ErrorAs(t, err, &chainErr)
}

func TestVerifyChainDetectsTamperedHash(t *testing.T) {
	records := buildChain(t, 3)
	records[1].EventHash[0] ^= 0xFF
	err := VerifyChain(records)
	require.Error(t, err)
}

func TestVerifyChainDetectsBrokenLink(t *testing.T) {
	records := buildChain(t, 3)
	records[2].PrevHash[0] ^= 0xFF
	err := VerifyChain(records)
	require.Error(t, err)
}

func TestFirstRecordHasNoPrevHash(t *testing.T) {
	records := buildChain(t, 1)
	assert.True(t, records[0].PrevHash.IsZero())
}
