// Package contracts holds the ABI and fixed addresses of the MyEpicNFT
// collection contract.
package contracts

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// MyEpicNFTABI is the subset of the collection ABI this service calls.
const MyEpicNFTABI = `[
	{
		"inputs": [],
		"name": "getMintMax",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "getTotalMinted",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "makeAnEpicNFT",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": false, "internalType": "address", "name": "sender", "type": "address"},
			{"indexed": false, "internalType": "uint256", "name": "tokenId", "type": "uint256"}
		],
		"name": "NewEpicNFTMinted",
		"type": "event"
	}
]`

const (
	MethodMintMax     = "getMintMax"
	MethodTotalMinted = "getTotalMinted"
	MethodMint        = "makeAnEpicNFT"
	EventMinted       = "NewEpicNFTMinted"
)

// DefaultEpicNFTAddress is the deployed collection on Rinkeby.
var DefaultEpicNFTAddress = common.HexToAddress("0x5991dE28Ec6357a50f7329fd6257D1603C72827b")

const (
	RinkebyChainID     = 4
	RinkebyNetworkName = "Rinkeby Test Network"

	DefaultCollectionURL = "https://testnets.opensea.io/collection/south-park-gang-qwsxfnqupu"
	DefaultAssetBaseURL  = "https://testnets.opensea.io/assets"
	DefaultExplorerTxURL = "https://rinkeby.etherscan.io/tx"
)

// ParseEpicNFTABI returns the parsed collection ABI.
func ParseEpicNFTABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(MyEpicNFTABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse abi: %w", err)
	}
	return parsed, nil
}

// AssetURL links to a single token on the marketplace.
func AssetURL(base string, contract common.Address, tokenID *big.Int) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(base, "/"), contract.Hex(), tokenID.String())
}

// TxURL links to a transaction on the block explorer.
func TxURL(base string, hash common.Hash) string {
	return strings.TrimRight(base, "/") + "/" + hash.Hex()
}

const (
	TwitterHandle = "fran_rimoldi"
	TwitterURL    = "https://twitter.com/" + TwitterHandle
)
