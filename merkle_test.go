package esplora

import (
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// buildProof computes the merkle root of the given leaves and an inclusion
// proof for leaf k, using the bitcoin convention of duplicating the last
// node on odd-sized levels.
func buildProof(leaves []chainhash.Hash, k int) (chainhash.Hash, []chainhash.Hash) {
	level := append([]chainhash.Hash(nil), leaves...)
	pos := k
	var siblings []chainhash.Hash

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		siblings = append(siblings, level[pos^1])

		next := make([]chainhash.Hash, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			var buf [chainhash.HashSize * 2]byte
			copy(buf[:chainhash.HashSize], level[i][:])
			copy(buf[chainhash.HashSize:], level[i+1][:])
			next = append(next, chainhash.DoubleHashH(buf[:]))
		}
		level = next
		pos >>= 1
	}
	return level[0], siblings
}

func syntheticLeaves(n int) []chainhash.Hash {
	leaves := make([]chainhash.Hash, n)
	for i := range leaves {
		leaves[i] = chainhash.DoubleHashH([]byte(fmt.Sprintf("tx-%d", i)))
	}
	return leaves
}

func TestVerifyMerkleProof(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 7, 8, 11} {
		for k := 0; k < n; k++ {
			t.Run(fmt.Sprintf("n=%d k=%d", n, k), func(t *testing.T) {
				leaves := syntheticLeaves(n)
				root, siblings := buildProof(leaves, k)
				proof := &MerkleProof{
					BlockHeight: 100,
					Siblings:    siblings,
					Pos:         uint32(k),
				}
				if !VerifyMerkleProof(leaves[k], proof, root) {
					t.Fatal("valid proof did not verify")
				}
			})
		}
	}
}

func TestVerifyMerkleProof_BitFlip(t *testing.T) {
	leaves := syntheticLeaves(7)
	root, siblings := buildProof(leaves, 4)

	for level := range siblings {
		for bit := 0; bit < chainhash.HashSize*8; bit += 37 {
			flipped := append([]chainhash.Hash(nil), siblings...)
			flipped[level][bit/8] ^= 1 << uint(bit%8)
			proof := &MerkleProof{BlockHeight: 100, Siblings: flipped, Pos: 4}
			if VerifyMerkleProof(leaves[4], proof, root) {
				t.Fatalf("proof verified with flipped bit %d at level %d", bit, level)
			}
		}
	}
}

func TestVerifyMerkleProof_Negative(t *testing.T) {
	leaves := syntheticLeaves(4)
	root, siblings := buildProof(leaves, 1)

	tests := []struct {
		name  string
		leaf  chainhash.Hash
		proof *MerkleProof
		root  chainhash.Hash
	}{
		{
			name:  "nil proof",
			leaf:  leaves[1],
			proof: nil,
			root:  root,
		},
		{
			name:  "wrong leaf",
			leaf:  leaves[2],
			proof: &MerkleProof{BlockHeight: 1, Siblings: siblings, Pos: 1},
			root:  root,
		},
		{
			name:  "wrong position",
			leaf:  leaves[1],
			proof: &MerkleProof{BlockHeight: 1, Siblings: siblings, Pos: 2},
			root:  root,
		},
		{
			name:  "position out of range",
			leaf:  leaves[1],
			proof: &MerkleProof{BlockHeight: 1, Siblings: siblings, Pos: 4},
			root:  root,
		},
		{
			name:  "wrong root",
			leaf:  leaves[1],
			proof: &MerkleProof{BlockHeight: 1, Siblings: siblings, Pos: 1},
			root:  chainhash.DoubleHashH([]byte("not the root")),
		},
		{
			name:  "truncated siblings",
			leaf:  leaves[1],
			proof: &MerkleProof{BlockHeight: 1, Siblings: siblings[:1], Pos: 1},
			root:  root,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if VerifyMerkleProof(tt.leaf, tt.proof, tt.root) {
				t.Fatal("invalid proof verified")
			}
		})
	}
}

func TestVerifyMerkleProof_SingleTxBlock(t *testing.T) {
	// A block with a single transaction has the txid as its merkle root and
	// an empty sibling sequence.
	leaf := chainhash.DoubleHashH([]byte("only"))
	proof := &MerkleProof{BlockHeight: 9, Siblings: nil, Pos: 0}
	if !VerifyMerkleProof(leaf, proof, leaf) {
		t.Fatal("empty proof with matching root did not verify")
	}
	if VerifyMerkleProof(leaf, &MerkleProof{Pos: 1}, leaf) {
		t.Fatal("empty proof with nonzero position verified")
	}
}
