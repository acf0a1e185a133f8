package cascade

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"magnetar/config"
)

func newTestMemo() *ExhaustionMemo {
	return NewExhaustionMemo(config.CacheSettings{RemoteExhaustSec: 120, LocalExhaustSec: 300})
}

func TestMemoMarkAndCheck(t *testing.T) {
	m := newTestMemo()
	require.False(t, m.IsExhausted("tt0111161", "spanish"))

	m.MarkLocal("tt0111161", "spanish")
	require.True(t, m.IsExhausted("tt0111161", "spanish"))
	require.False(t, m.IsExhausted("tt0111161", "combined"), "marks are per source")
	require.False(t, m.IsExhausted("tt0068646", "spanish"), "marks are per identifier")
}

func TestMemoEpisodeKeysAreIndependent(t *testing.T) {
	m := newTestMemo()
	m.MarkRemote("tt0903747", "remote:spanish")

	require.True(t, m.IsExhausted("tt0903747", "remote:spanish"))
	require.False(t, m.IsExhausted("tt0903747:2:5", "remote:spanish"),
		"a base-level mark must not block an episode probe")
}

func TestMemoExpiry(t *testing.T) {
	m := newTestMemo()
	m.MarkRemote("tt0111161", "remote:spanish")
	m.entries[memoKey("tt0111161", "remote:spanish")] = time.Now().Add(-time.Second)

	require.False(t, m.IsExhausted("tt0111161", "remote:spanish"))
	require.Zero(t, m.Len(), "expired entry must be pruned on read")
}

func TestMemoClearDropsEpisodeVariants(t *testing.T) {
	m := newTestMemo()
	m.MarkRemote("tt0903747", "remote:spanish")
	m.MarkRemote("tt0903747:2:5", "remote:spanish")
	m.MarkRemote("tt0903747:2:6", "remote:spanish")
	m.MarkRemote("tt0903747", "remote:english")

	m.Clear("tt0903747", "remote:spanish")
	require.False(t, m.IsExhausted("tt0903747", "remote:spanish"))
	require.False(t, m.IsExhausted("tt0903747:2:5", "remote:spanish"))
	require.False(t, m.IsExhausted("tt0903747:2:6", "remote:spanish"))
	require.True(t, m.IsExhausted("tt0903747", "remote:english"), "other sources keep their marks")
}
