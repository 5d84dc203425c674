package ident

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Sum returns the digest of data as a CIDv1 with the "raw" multicodec
// over a sha2-256 multihash. This is the digest every hash-reference
// Identifier embeds.
func Sum(data []byte) cid.Cid {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		// multihash.Sum only errors for invalid codes; with SHA2_256
		// and the default length this is unreachable.
		panic("ident: sha2-256 multihash failed: " + err.Error())
	}
	return cid.NewCidV1(cid.Raw, sum)
}
