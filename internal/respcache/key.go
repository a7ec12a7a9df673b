package respcache

import (
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/text/unicode/norm"
)

// keyDomain is the BLAKE3 key for request identity digests. Changing it
// orphans every stored entry.
var keyDomain = [32]byte{
	'f', 'i', 'e', 'l', 'd', 's', 'y', 'n', 'c', '.', 'r', 'e', 's', 'p', 'c', 'a',
	'c', 'h', 'e', '.', 'k', 'e', 'y', 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Identity returns the normalized request identity: the upper-cased
// method and the URL with a lower-cased scheme and host, no fragment, an
// explicit "/" path, and NFC-normalized path and query.
func Identity(method string, u *url.URL) string {
	n := *u
	n.Scheme = strings.ToLower(n.Scheme)
	n.Host = strings.ToLower(n.Host)
	n.Fragment = ""
	n.RawFragment = ""
	n.User = nil
	if n.Path == "" {
		n.Path = "/"
	}
	n.Path = norm.NFC.String(n.Path)
	n.RawPath = ""
	n.RawQuery = norm.NFC.String(n.RawQuery)
	return strings.ToUpper(method) + " " + n.String()
}

// Key returns the storage key for a request identity: the hex BLAKE3
// keyed digest of Identity(method, u).
func Key(method string, u *url.URL) string {
	// NewKeyed only fails for keys that are not 32 bytes.
	hasher, err := blake3.NewKeyed(keyDomain[:])
	if err != nil {
		panic("respcache: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write([]byte(Identity(method, u)))
	return hex.EncodeToString(hasher.Sum(nil))
}
