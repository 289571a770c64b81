// Package cas describes a content-addressed shard store.
package cas

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// HashPrefix is the scheme prefix on every Hash.
const HashPrefix = "sha256-"

type (
	// Blob is the type of a blob.
	Blob []byte

	// Hash is the content address of a blob:
	// the string "sha256-" followed by the hex-encoded SHA2-256 digest of its bytes.
	// It doubles as a storage key and an integrity checksum.
	Hash string
)

// Sum computes the Hash of a byte slice.
func Sum(b []byte) Hash {
	sum := sha256.Sum256(b)
	return HashPrefix + Hash(hex.EncodeToString(sum[:]))
}

// Hash computes the Hash of a blob.
func (b Blob) Hash() Hash {
	return Sum(b)
}

// Addresses computes both identities of a byte slice from a single digest pass:
// a CIDv1 (raw codec, sha2-256 multihash) for interoperability,
// and the Hash used as this store's key.
// The two always agree on identical input.
func Addresses(b []byte) (cid.Cid, Hash) {
	sum := sha256.Sum256(b)
	mh, err := multihash.Encode(sum[:], multihash.SHA2_256)
	if err != nil {
		// multihash.Encode cannot fail for a registered code and a well-formed digest.
		panic(err)
	}
	return cid.NewCidV1(cid.Raw, mh), HashPrefix + Hash(hex.EncodeToString(sum[:]))
}

var hashRegex = regexp.MustCompile(`^sha256-[0-9a-f]{64}$`)

// Valid reports whether h is well-formed.
func (h Hash) Valid() bool {
	return hashRegex.MatchString(string(h))
}

// Hex is the hex-encoded digest of h, without the scheme prefix.
func (h Hash) Hex() string {
	if len(h) > len(HashPrefix) {
		return string(h[len(HashPrefix):])
	}
	return string(h)
}

// Short is a truncated form of h for logs.
func (h Hash) Short() string {
	hx := h.Hex()
	if len(hx) > 8 {
		return HashPrefix + hx[:8]
	}
	return string(h)
}

func (h Hash) String() string { return string(h) }

// Less tells whether h sorts before other.
func (h Hash) Less(other Hash) bool {
	return h < other
}
