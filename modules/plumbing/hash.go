package plumbing

import (
	"encoding/hex"
	"encoding/json"
	"hash"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// Hash is the opaque, content-addressed identifier of a commit object in the
// repository. It is stored as the lower-case hex encoding produced by the
// repository's own object database, so it is agnostic to whether the backing
// store hashes with a 20-byte or 32-byte digest.
type Hash string

// ZeroHash is the Hash with no digest: the conventional "does not exist" id.
const ZeroHash Hash = ""

// NewHash wraps a hex object id as reported by the repository.
func NewHash(s string) Hash {
	return Hash(strings.ToLower(strings.TrimSpace(s)))
}

func (h Hash) IsZero() bool {
	return h == "" || strings.Trim(string(h), "0") == ""
}

func (h Hash) String() string {
	return string(h)
}

func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(h))
}

func (h *Hash) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*h = Hash(s)
	return nil
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	*h = Hash(text)
	return nil
}

// Shorten returns the conventional abbreviated form of the id.
func (h Hash) Shorten() string {
	if len(h) <= 10 {
		return string(h)
	}
	return string(h[:10])
}

// ValidateHashHex reports whether s looks like a hex object id of a size the
// repository's hash algorithm could have produced (SHA-1's 40 hex chars or
// SHA-256/BLAKE3's 64).
func ValidateHashHex(s string) bool {
	if len(s) != 40 && len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// HashesSort sorts a slice of Hashes in increasing lexical order.
func HashesSort(a []Hash) {
	sort.Sort(HashSlice(a))
}

// HashSlice attaches the methods of sort.Interface to []Hash.
type HashSlice []Hash

func (p HashSlice) Len() int           { return len(p) }
func (p HashSlice) Less(i, j int) bool { return p[i] < p[j] }
func (p HashSlice) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }

// Hasher wraps BLAKE3, independently of whichever algorithm the repository
// itself uses for commits. The stack-state blob is not hashed with it; git
// hashes that blob when it is written.
type Hasher struct {
	hash.Hash
}

func NewHasher() Hasher {
	return Hasher{Hash: blake3.New()}
}

func (h Hasher) SumHex() string {
	return hex.EncodeToString(h.Hash.Sum(nil))
}
