package controller

import "fmt"

// View is a snapshot of the controller state the page renders from.
type View struct {
	Account     string  `json:"currentAccount"`
	MintMax     *uint64 `json:"mintMax,omitempty"`
	MintedSoFar *uint64 `json:"mintedSoFar,omitempty"`
	IsMinting   bool    `json:"isMinting"`
}

func (v View) Connected() bool {
	return v.Account != ""
}

// StatsLine is empty until both counters have been read.
func (v View) StatsLine() string {
	if v.MintMax == nil || v.MintedSoFar == nil {
		return ""
	}
	return fmt.Sprintf("%d/%d minted so far", *v.MintedSoFar, *v.MintMax)
}

func (v View) MintLabel() string {
	if v.IsMinting {
		return "Minting ..."
	}
	return "Mint NFT"
}
