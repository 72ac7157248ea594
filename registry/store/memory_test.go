package store

import (
	"context"
	"crypto/ecdsa"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rwaswap/rwaswap-core-go/registry"
)

func testRelease(component, version string) registry.Release {
	return registry.Release{
		Component:   component,
		Version:     version,
		BinaryHash:  crypto.Keccak256Hash([]byte(component + version)),
		PublishedAt: time.Now().UTC(),
		PublishedBy: common.HexToAddress("0x0000000000000000000000000000000000000999"),
	}
}

func TestMemory_SaveRelease(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SaveRelease(ctx, testRelease("edge-gateway", "1.0.0"), 1))
	require.NoError(t, m.SaveRelease(ctx, testRelease("edge-gateway", "1.1.0"), 2))

	t.Run("Duplicate Version", func(t *testing.T) {
		err := m.SaveRelease(ctx, testRelease("edge-gateway", "1.0.0"), 3)
		require.Error(t, err)
		assert.ErrorIs(t, err, registry.ErrDuplicateVersion)
	})

	snap, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), snap.Nonce)
	assert.Len(t, snap.Releases, 2)
	assert.Equal(t, []string{"1.0.0", "1.1.0"}, snap.History["edge-gateway"])
	assert.Equal(t, 1, snap.LatestIndex["edge-gateway"])
}

func TestMemory_SaveRevocation(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	revoker := common.HexToAddress("0x0000000000000000000000000000000000000001")

	require.NoError(t, m.SaveRelease(ctx, testRelease("edge-gateway", "1.0.0"), 1))
	require.NoError(t, m.SaveRevocation(ctx, "edge-gateway", "1.0.0", "bad build", revoker, time.Now().UTC(), 2))

	snap, err := m.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Releases, 1)
	assert.True(t, snap.Releases[0].Revoked)
	assert.Equal(t, "bad build", snap.Releases[0].RevokeReason)
	assert.Equal(t, revoker, snap.Releases[0].RevokedBy)

	t.Run("Unknown Version", func(t *testing.T) {
		err := m.SaveRevocation(ctx, "edge-gateway", "0.0.1", "", revoker, time.Now().UTC(), 3)
		require.Error(t, err)
		assert.ErrorIs(t, err, registry.ErrVersionNotFound)
	})

	t.Run("Unknown Component", func(t *testing.T) {
		err := m.SaveRevocation(ctx, "nope", "1.0.0", "", revoker, time.Now().UTC(), 3)
		require.Error(t, err)
		assert.ErrorIs(t, err, registry.ErrVersionNotFound)
	})
}

// TestRegistry_RestoreFromSnapshot drives a live registry against a Memory
// store, then restores a second registry from the stored snapshot and checks
// they agree.
func TestRegistry_RestoreFromSnapshot(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	keys := make([]*ecdsa.PrivateKey, 3)
	addrs := make([]common.Address, 3)
	for i := range keys {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		keys[i] = key
		addrs[i] = crypto.PubkeyToAddress(key.PublicKey)
	}

	cfg := registry.Config{
		ChainID:   1,
		Address:   common.HexToAddress("0x000000000000000000000000000000000000be57"),
		Signers:   addrs,
		Threshold: 2,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:     m,
	}
	live, err := registry.New(cfg)
	require.NoError(t, err)

	sign := func(digest common.Hash, ks ...*ecdsa.PrivateKey) [][]byte {
		sigs := make([][]byte, 0, len(ks))
		for _, k := range ks {
			sig, err := crypto.Sign(digest.Bytes(), k)
			require.NoError(t, err)
			sigs = append(sigs, sig)
		}
		return sigs
	}

	hash := crypto.Keccak256Hash([]byte("binary"))
	publisher := common.HexToAddress("0x0000000000000000000000000000000000000999")

	digest := live.ComputePublishHash("edge-gateway", "1.0.0", hash, "", 0)
	require.NoError(t, live.PublishRelease(ctx, publisher, "edge-gateway", "1.0.0", hash, "", "", 0, sign(digest, keys[0], keys[1])))

	digest = live.ComputePublishHash("edge-gateway", "1.1.0", hash, "", 1)
	require.NoError(t, live.PublishRelease(ctx, publisher, "edge-gateway", "1.1.0", hash, "", "", 1, sign(digest, keys[1], keys[2])))

	digest = live.ComputeMinimumVersionHash("edge-gateway", "1.1.0", 2)
	require.NoError(t, live.SetMinimumVersion(ctx, "edge-gateway", "1.1.0", 2, sign(digest, keys[0], keys[2])))

	snap, err := m.Load(ctx)
	require.NoError(t, err)

	restored, err := registry.NewFromSnapshot(cfg, snap)
	require.NoError(t, err)

	assert.Equal(t, live.GetOperationNonce(), restored.GetOperationNonce())
	assert.Equal(t, live.GetSigners(), restored.GetSigners())
	assert.Equal(t, live.GetMinimumVersion("edge-gateway"), restored.GetMinimumVersion("edge-gateway"))
	assert.Equal(t, live.VersionHistory("edge-gateway"), restored.VersionHistory("edge-gateway"))

	liveLatest, err := live.GetLatestRelease("edge-gateway")
	require.NoError(t, err)
	restoredLatest, err := restored.GetLatestRelease("edge-gateway")
	require.NoError(t, err)
	assert.Equal(t, liveLatest.Version, restoredLatest.Version)
	assert.Equal(t, liveLatest.BinaryHash, restoredLatest.BinaryHash)

	// The restored registry continues the nonce sequence.
	digest = restored.ComputePublishHash("edge-gateway", "2.0.0", hash, "", 3)
	require.NoError(t, restored.PublishRelease(ctx, publisher, "edge-gateway", "2.0.0", hash, "", "", 3, sign(digest, keys[0], keys[1])))
}

func TestMemory_SaveMinimumVersionAndSignerSet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SaveMinimumVersion(ctx, "edge-gateway", "1.2.0", 1))

	signers := []common.Address{
		common.HexToAddress("0x01"),
		common.HexToAddress("0x02"),
		common.HexToAddress("0x03"),
	}
	require.NoError(t, m.SaveSignerSet(ctx, signers, 2, 2))

	snap, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", snap.MinimumVersions["edge-gateway"])
	assert.Equal(t, signers, snap.Signers)
	assert.Equal(t, 2, snap.Threshold)
	assert.Equal(t, uint64(2), snap.Nonce)

	// The snapshot holds copies, not the store's slices.
	snap.Signers[0] = common.Address{}
	fresh, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, signers, fresh.Signers)
}
