package wallet

import (
	"encoding/hex"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unlockedDevSigner(t *testing.T) *KeySigner {
	t.Helper()
	key, err := ImportRootKey(devKeyHex, "testpassword", LightScrypt())
	require.NoError(t, err)
	signer, err := UnlockRootKey(key.KeyJSON, "testpassword")
	require.NoError(t, err)
	return signer
}

func TestKeySigner_SignMessage(t *testing.T) {
	t.Run("signs message with EIP-191 prefix", func(t *testing.T) {
		signer := unlockedDevSigner(t)

		message := []byte("Hello, Ethereum!")
		sig, err := signer.SignMessage(message)
		require.NoError(t, err)
		require.Len(t, sig, 65)

		// V must be 27 or 28
		assert.True(t, sig[64] == 27 || sig[64] == 28, "unexpected v: %d", sig[64])

		recovered, err := RecoverPersonal(message, sig)
		require.NoError(t, err)
		assert.Equal(t, devKeyAddress, recovered)
	})

	t.Run("personal hash matches go-ethereum text hash", func(t *testing.T) {
		msg := crypto.Keccak256([]byte("user operation"))
		assert.Equal(t, accounts.TextHash(msg), PersonalHash(msg))
	})

	t.Run("signature is deterministic", func(t *testing.T) {
		signer := unlockedDevSigner(t)
		hash := crypto.Keccak256([]byte("payload"))

		s1, err := signer.SignMessage(hash)
		require.NoError(t, err)
		s2, err := signer.SignMessage(hash)
		require.NoError(t, err)
		assert.Equal(t, hex.EncodeToString(s1), hex.EncodeToString(s2))
	})

	t.Run("returns error when locked", func(t *testing.T) {
		signer := unlockedDevSigner(t)
		signer.Lock()

		_, err := signer.SignMessage([]byte("test"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrAccountLocked)
	})

	t.Run("lock is idempotent", func(t *testing.T) {
		signer := unlockedDevSigner(t)
		signer.Lock()
		signer.Lock()
		assert.Equal(t, devKeyAddress, signer.Address())
	})
}

func TestKeySigner_ConcurrentLock(t *testing.T) {
	signer := unlockedDevSigner(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sig, err := signer.SignMessage([]byte("race"))
			if err != nil {
				assert.ErrorIs(t, err, ErrAccountLocked)
				return
			}
			assert.Len(t, sig, 65)
		}()
	}
	signer.Lock()
	wg.Wait()

	_, err := signer.SignMessage([]byte("after"))
	assert.ErrorIs(t, err, ErrAccountLocked)
}

func TestRecoverPersonal(t *testing.T) {
	t.Run("rejects short signature", func(t *testing.T) {
		_, err := RecoverPersonal([]byte("m"), make([]byte, 10))
		require.Error(t, err)
	})

	t.Run("different message recovers different address", func(t *testing.T) {
		signer := unlockedDevSigner(t)
		sig, err := signer.SignMessage([]byte("one"))
		require.NoError(t, err)

		recovered, err := RecoverPersonal([]byte("two"), sig)
		if err == nil {
			assert.NotEqual(t, devKeyAddress, recovered)
		}
	})
}
