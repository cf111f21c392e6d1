package contracts

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestParseEpicNFTABI(t *testing.T) {
	parsed, err := ParseEpicNFTABI()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, name := range []string{MethodMintMax, MethodTotalMinted, MethodMint} {
		if _, ok := parsed.Methods[name]; !ok {
			t.Fatalf("missing method %s", name)
		}
	}
	ev, ok := parsed.Events[EventMinted]
	if !ok {
		t.Fatalf("missing event %s", EventMinted)
	}
	if len(ev.Inputs) != 2 || ev.Inputs[0].Name != "sender" || ev.Inputs[1].Name != "tokenId" {
		t.Fatalf("unexpected event inputs: %+v", ev.Inputs)
	}
}

func TestAssetURL(t *testing.T) {
	got := AssetURL(DefaultAssetBaseURL+"/", DefaultEpicNFTAddress, big.NewInt(7))
	want := "https://testnets.opensea.io/assets/0x5991dE28Ec6357a50f7329fd6257D1603C72827b/7"
	if got != want {
		t.Fatalf("expected %s got %s", want, got)
	}
}

func TestTxURL(t *testing.T) {
	hash := common.HexToHash("0x01")
	got := TxURL(DefaultExplorerTxURL, hash)
	if got != DefaultExplorerTxURL+"/"+hash.Hex() {
		t.Fatalf("unexpected url %s", got)
	}
}
