package custody

import (
	"bytes"
	"math/big"
	"testing"

	"nftlend/core/types"
	"nftlend/crypto"
)

func testAddress(fill byte) crypto.Address {
	return crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{fill}, 20))
}

func testRef(tokenID int64) types.CollateralRef {
	return types.CollateralRef{
		Collection: crypto.NewAddress(crypto.CollectionPrefix, bytes.Repeat([]byte{0xC0}, 20)),
		TokenID:    big.NewInt(tokenID),
	}
}

func TestTransferFungible(t *testing.T) {
	ledger := NewLedger()
	alice := testAddress(0x01)
	bob := testAddress(0x02)
	ledger.Mint(alice, "USDT", big.NewInt(100))

	if err := ledger.TransferFungible("USDT", alice, bob, big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := ledger.Balance(alice, "USDT"); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("unexpected sender balance: %s", got)
	}
	if got := ledger.Balance(bob, "USDT"); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("unexpected recipient balance: %s", got)
	}
	if err := ledger.TransferFungible("USDT", alice, bob, big.NewInt(100)); err == nil {
		t.Fatalf("expected insufficient balance error")
	}
	if got := ledger.Balance(alice, "USDT"); got.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("failed transfer must not move funds: %s", got)
	}
}

func TestTransferUniqueClearsApprovals(t *testing.T) {
	ledger := NewLedger()
	owner := testAddress(0x03)
	vault := testAddress(0x04)
	ref := testRef(7)
	if err := ledger.MintAsset(ref, owner); err != nil {
		t.Fatalf("mint asset: %v", err)
	}
	ledger.Approve(ref, vault)
	if !ledger.IsApproved(ref, vault) {
		t.Fatalf("expected approval")
	}

	if err := ledger.TransferUnique(ref, owner, vault); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	holder, ok := ledger.OwnerOf(ref)
	if !ok || !holder.Equal(vault) {
		t.Fatalf("unexpected holder: %v", holder)
	}
	if ledger.IsApproved(ref, vault) {
		t.Fatalf("approvals must be cleared on transfer")
	}
	if err := ledger.TransferUnique(ref, owner, vault); err == nil {
		t.Fatalf("expected not-held error on second transfer")
	}
}

func TestTransferHooksFire(t *testing.T) {
	ledger := NewLedger()
	alice := testAddress(0x05)
	bob := testAddress(0x06)
	ledger.Mint(alice, "WETH", big.NewInt(10))

	var fungibleCalls int
	ledger.OnFungibleTransfer(func(currency string, from, to crypto.Address, amount *big.Int) {
		fungibleCalls++
		if currency != "WETH" || amount.Cmp(big.NewInt(10)) != 0 {
			t.Fatalf("unexpected hook payload: %s %s", currency, amount)
		}
	})
	if err := ledger.TransferFungible("WETH", alice, bob, big.NewInt(10)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if fungibleCalls != 1 {
		t.Fatalf("expected one hook invocation, got %d", fungibleCalls)
	}
}
