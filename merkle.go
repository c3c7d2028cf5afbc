package esplora

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// VerifyMerkleProof checks that leaf sits under expectedRoot at the position
// the proof claims. It is a pure fold over the sibling sequence: at level i,
// bit i of the position index selects the concatenation order before the
// double-SHA256 combine. All hashes are in chainhash internal byte order, the
// same convention the decoder produces for txids and merkle roots.
//
// A mismatch is a normal negative result, not an error; what to do about an
// unverified transaction is the caller's decision.
func VerifyMerkleProof(leaf chainhash.Hash, proof *MerkleProof, expectedRoot chainhash.Hash) bool {
	if proof == nil || len(proof.Siblings) > 32 {
		return false
	}
	if len(proof.Siblings) < 32 && uint64(proof.Pos) >= uint64(1)<<uint(len(proof.Siblings)) {
		return false
	}

	current := leaf
	for i, sibling := range proof.Siblings {
		var buf [chainhash.HashSize * 2]byte
		if proof.Pos>>uint(i)&1 == 0 {
			copy(buf[:chainhash.HashSize], current[:])
			copy(buf[chainhash.HashSize:], sibling[:])
		} else {
			copy(buf[:chainhash.HashSize], sibling[:])
			copy(buf[chainhash.HashSize:], current[:])
		}
		current = chainhash.DoubleHashH(buf[:])
	}
	return current == expectedRoot
}
