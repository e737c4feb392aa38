package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const minterABIJSON = `[
 {"type":"function","name":"mintTo","stateMutability":"nonpayable",
  "inputs":[{"name":"to","type":"address"},{"name":"tokenURI","type":"string"},{"name":"trendHash","type":"string"}],
  "outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getCurrentTokenId","stateMutability":"view",
  "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"ownerOf","stateMutability":"view",
  "inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
 {"type":"function","name":"tokenURI","stateMutability":"view",
  "inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
 {"type":"function","name":"setApprovalForAll","stateMutability":"nonpayable",
  "inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"outputs":[]},
 {"type":"function","name":"isApprovedForAll","stateMutability":"view",
  "inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"transferFrom","stateMutability":"nonpayable",
  "inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
 {"type":"event","name":"Minted","anonymous":false,
  "inputs":[{"name":"tokenId","type":"uint256","indexed":true},{"name":"to","type":"address","indexed":true},
            {"name":"tokenURI","type":"string","indexed":false},{"name":"trendHash","type":"string","indexed":false}]}
]`

const marketABIJSON = `[
 {"type":"function","name":"list","stateMutability":"nonpayable",
  "inputs":[{"name":"nft","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"price","type":"uint256"}],
  "outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"buy","stateMutability":"payable",
  "inputs":[{"name":"listingId","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"cancel","stateMutability":"nonpayable",
  "inputs":[{"name":"listingId","type":"uint256"}],"outputs":[]},
 {"type":"function","name":"getCurrentListingId","stateMutability":"view",
  "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"getListing","stateMutability":"view",
  "inputs":[{"name":"listingId","type":"uint256"}],
  "outputs":[{"name":"","type":"tuple","components":[
    {"name":"nft","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"seller","type":"address"},
    {"name":"price","type":"uint256"},{"name":"active","type":"bool"},{"name":"listedAt","type":"uint256"}]}]},
 {"type":"function","name":"getActiveListings","stateMutability":"view",
  "inputs":[{"name":"offset","type":"uint256"},{"name":"limit","type":"uint256"}],
  "outputs":[{"name":"","type":"uint256[]"}]},
 {"type":"function","name":"paused","stateMutability":"view",
  "inputs":[],"outputs":[{"name":"","type":"bool"}]},
 {"type":"event","name":"Listed","anonymous":false,
  "inputs":[{"name":"listingId","type":"uint256","indexed":true},{"name":"nft","type":"address","indexed":true},
            {"name":"tokenId","type":"uint256","indexed":true},{"name":"seller","type":"address","indexed":false},
            {"name":"price","type":"uint256","indexed":false}]},
 {"type":"event","name":"Purchased","anonymous":false,
  "inputs":[{"name":"listingId","type":"uint256","indexed":true},{"name":"nft","type":"address","indexed":true},
            {"name":"tokenId","type":"uint256","indexed":true},{"name":"seller","type":"address","indexed":false},
            {"name":"buyer","type":"address","indexed":false},{"name":"price","type":"uint256","indexed":false},
            {"name":"fee","type":"uint256","indexed":false}]}
]`

// MinterABI and MarketABI are the parsed contract interfaces.
var (
	MinterABI = mustParseABI(minterABIJSON)
	MarketABI = mustParseABI(marketABIJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("chain: invalid ABI: " + err.Error())
	}
	return parsed
}
