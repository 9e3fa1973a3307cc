package escrow

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/uhyunpark/safeswap/pkg/ledger"
	"github.com/uhyunpark/safeswap/pkg/util"
)

var (
	alice = common.HexToAddress("0xAA00000000000000000000000000000000000000") // creator
	bob   = common.HexToAddress("0xBB00000000000000000000000000000000000000") // filler
	carol = common.HexToAddress("0xCC00000000000000000000000000000000000000") // bystander
	vault = common.HexToAddress("0x00000000000000000000000000000000005AfE01")

	hyplToken = common.HexToAddress("0x1000000000000000000000000000000000000001")
	usdToken  = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

type testEnv struct {
	engine *Engine
	bank   *ledger.Bank
	tokens *ledger.TokenLedger
}

// newTestEnv wires an engine over a temporary pebble database and fresh
// in-memory ledgers
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := NewStore(t.TempDir() + "/orders.db")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})

	reg, err := NewRegistry(store)
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}

	bank := ledger.NewBank()
	tokens := ledger.NewTokenLedger()
	cust := NewCustodian(bank, tokens, vault)
	engine := NewEngine(reg, cust, util.RealClock{}, nil)

	return &testEnv{engine: engine, bank: bank, tokens: tokens}
}

func n(v int64) *big.Int { return big.NewInt(v) }

// nativeOrder creates an order paying 20 native for 30 hyplToken, with
// 10 native collateral. Mints alice's payment first.
func (env *testEnv) nativeOrder(t *testing.T) uint64 {
	t.Helper()

	env.bank.Mint(alice, n(20))
	id, err := env.engine.CreatePurchaseOrder(alice, CreateParams{
		PurchaseAsset:   Token(hyplToken),
		PurchaseValue:   n(30),
		PaymentAsset:    Native(),
		PaymentValue:    n(20),
		CollateralAsset: Native(),
		CollateralValue: n(10),
	}, n(20))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return id
}

func TestCreatePurchaseOrderNative(t *testing.T) {
	env := newTestEnv(t)
	id := env.nativeOrder(t)

	// Escrow grew by exactly the payment value
	if got := env.engine.Custodian().Escrowed(Native()); got.Cmp(n(20)) != 0 {
		t.Errorf("escrowed = %s, want 20", got)
	}
	if got := env.bank.BalanceOf(alice); got.Sign() != 0 {
		t.Errorf("creator balance = %s, want 0", got)
	}

	order, err := env.engine.GetOrder(id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if order == nil {
		t.Fatal("order absent after create")
	}
	if order.Committed {
		t.Error("new order marked committed")
	}
	if order.Filler != (common.Address{}) {
		t.Errorf("new order has filler %s", order.Filler.Hex())
	}
	if order.Creator != alice {
		t.Errorf("creator = %s, want %s", order.Creator.Hex(), alice.Hex())
	}
	if err := order.Validate(); err != nil {
		t.Errorf("invariant violated: %v", err)
	}
}

func TestCreateWrongAttachedValue(t *testing.T) {
	env := newTestEnv(t)
	env.bank.Mint(alice, n(100))

	// One unit short
	_, err := env.engine.CreatePurchaseOrder(alice, CreateParams{
		PurchaseAsset:   Token(hyplToken),
		PurchaseValue:   n(30),
		PaymentAsset:    Native(),
		PaymentValue:    n(20),
		CollateralAsset: Native(),
		CollateralValue: n(10),
	}, n(19))
	if !errors.Is(err, ErrWrongNativeAmount) {
		t.Fatalf("err = %v, want ErrWrongNativeAmount", err)
	}
	if KindOf(err) != KindValueMismatch {
		t.Errorf("kind = %s, want value_mismatch", KindOf(err))
	}

	// Failed create leaves no trace
	if got := env.engine.Custodian().Escrowed(Native()); got.Sign() != 0 {
		t.Errorf("escrowed = %s after failed create, want 0", got)
	}
	if got := env.bank.BalanceOf(alice); got.Cmp(n(100)) != 0 {
		t.Errorf("creator balance = %s, want 100", got)
	}
}

func TestCreateInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	// No mint: alice has nothing to attach

	_, err := env.engine.CreatePurchaseOrder(alice, CreateParams{
		PurchaseAsset:   Token(hyplToken),
		PurchaseValue:   n(30),
		PaymentAsset:    Native(),
		PaymentValue:    n(20),
		CollateralAsset: Native(),
		CollateralValue: n(10),
	}, n(20))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("err = %v, want ErrTransferFailed", err)
	}
}

func TestCancelPurchaseOrder(t *testing.T) {
	env := newTestEnv(t)
	id := env.nativeOrder(t)

	// Strangers cannot cancel
	if err := env.engine.CancelPurchaseOrder(id, carol); !errors.Is(err, ErrNotOrderOwner) {
		t.Fatalf("err = %v, want ErrNotOrderOwner", err)
	}

	if err := env.engine.CancelPurchaseOrder(id, alice); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	// Payment returned in full, order gone
	if got := env.bank.BalanceOf(alice); got.Cmp(n(20)) != 0 {
		t.Errorf("creator balance = %s, want 20", got)
	}
	if got := env.engine.Custodian().Escrowed(Native()); got.Sign() != 0 {
		t.Errorf("escrowed = %s, want 0", got)
	}
	order, _ := env.engine.GetOrder(id)
	if order != nil {
		t.Error("order still present after cancel")
	}

	// Archived for history
	closed, err := env.engine.GetClosedOrder(id)
	if err != nil {
		t.Fatalf("archive lookup failed: %v", err)
	}
	if closed == nil || closed.Outcome != OutcomeCancelled {
		t.Errorf("archive entry = %+v, want cancelled", closed)
	}
}

func TestCancelNonexistent(t *testing.T) {
	env := newTestEnv(t)

	err := env.engine.CancelPurchaseOrder(42, alice)
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
	if KindOf(err) != KindState {
		t.Errorf("kind = %s, want state", KindOf(err))
	}
}

func TestCommitExclusive(t *testing.T) {
	env := newTestEnv(t)
	id := env.nativeOrder(t)
	env.bank.Mint(bob, n(10))
	env.bank.Mint(carol, n(10))

	if err := env.engine.CommitToPurchaseOrder(id, bob, n(10)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	// Second commit fails deterministically, from any caller
	if err := env.engine.CommitToPurchaseOrder(id, carol, n(10)); !errors.Is(err, ErrAlreadyCommitted) {
		t.Fatalf("second commit err = %v, want ErrAlreadyCommitted", err)
	}
	if err := env.engine.CommitToPurchaseOrder(id, bob, n(10)); !errors.Is(err, ErrAlreadyCommitted) {
		t.Fatalf("filler recommit err = %v, want ErrAlreadyCommitted", err)
	}

	// First filler's slot is preserved
	order, _ := env.engine.GetOrder(id)
	if order == nil || !order.Committed || order.Filler != bob {
		t.Fatalf("order = %+v, want committed to bob", order)
	}

	// Payment + collateral escrowed together
	if got := env.engine.Custodian().Escrowed(Native()); got.Cmp(n(30)) != 0 {
		t.Errorf("escrowed = %s, want 30", got)
	}
}

func TestCommitWrongCollateral(t *testing.T) {
	env := newTestEnv(t)
	id := env.nativeOrder(t)
	env.bank.Mint(bob, n(10))

	// One unit short
	err := env.engine.CommitToPurchaseOrder(id, bob, n(9))
	if !errors.Is(err, ErrIncorrectCollateral) {
		t.Fatalf("err = %v, want ErrIncorrectCollateral", err)
	}
	if KindOf(err) != KindValueMismatch {
		t.Errorf("kind = %s, want value_mismatch", KindOf(err))
	}

	// Order stays Open with no collateral pulled
	order, _ := env.engine.GetOrder(id)
	if order == nil || order.Committed {
		t.Fatalf("order = %+v, want open", order)
	}
	if got := env.bank.BalanceOf(bob); got.Cmp(n(10)) != 0 {
		t.Errorf("filler balance = %s, want 10", got)
	}
	if got := env.engine.Custodian().Escrowed(Native()); got.Cmp(n(20)) != 0 {
		t.Errorf("escrowed = %s, want 20", got)
	}
}

func TestCancelAfterCommit(t *testing.T) {
	env := newTestEnv(t)
	id := env.nativeOrder(t)
	env.bank.Mint(bob, n(10))
	if err := env.engine.CommitToPurchaseOrder(id, bob, n(10)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	// Once committed, fill is the only exit
	if err := env.engine.CancelPurchaseOrder(id, alice); !errors.Is(err, ErrAlreadyCommitted) {
		t.Fatalf("err = %v, want ErrAlreadyCommitted", err)
	}
}

func TestFillRequiresCommittedFiller(t *testing.T) {
	env := newTestEnv(t)
	id := env.nativeOrder(t)

	// Fill before commit is a state error
	if err := env.engine.FillPurchaseOrder(id, bob, nil); !errors.Is(err, ErrNotCommitted) {
		t.Fatalf("uncommitted fill err = %v, want ErrNotCommitted", err)
	}

	env.bank.Mint(bob, n(10))
	if err := env.engine.CommitToPurchaseOrder(id, bob, n(10)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	// Only the committed filler may fill
	if err := env.engine.FillPurchaseOrder(id, carol, nil); !errors.Is(err, ErrNotOrderFiller) {
		t.Fatalf("stranger fill err = %v, want ErrNotOrderFiller", err)
	}
	if KindOf(ErrNotOrderFiller) != KindAuthorization {
		t.Errorf("kind = %s, want authorization", KindOf(ErrNotOrderFiller))
	}
}

func TestFillNonexistent(t *testing.T) {
	env := newTestEnv(t)

	err := env.engine.FillPurchaseOrder(7, bob, nil)
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
}

// TestEndToEndNative walks the full lifecycle with native payment/collateral:
// create (30 hyplToken for 20 native, 10 native collateral), commit with
// exactly 10 attached, fill. Creator ends with 30 token; filler ends with
// 20+10 native; the order no longer exists.
func TestEndToEndNative(t *testing.T) {
	env := newTestEnv(t)
	id := env.nativeOrder(t)

	env.bank.Mint(bob, n(10))
	env.tokens.Mint(hyplToken, bob, n(30))
	env.tokens.Approve(hyplToken, bob, vault, n(30))

	if err := env.engine.CommitToPurchaseOrder(id, bob, n(10)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if err := env.engine.FillPurchaseOrder(id, bob, nil); err != nil {
		t.Fatalf("fill failed: %v", err)
	}

	if got := env.tokens.BalanceOf(hyplToken, alice); got.Cmp(n(30)) != 0 {
		t.Errorf("creator token balance = %s, want 30", got)
	}
	if got := env.bank.BalanceOf(bob); got.Cmp(n(30)) != 0 {
		t.Errorf("filler native balance = %s, want 30 (payment 20 + collateral 10)", got)
	}
	if got := env.engine.Custodian().Escrowed(Native()); got.Sign() != 0 {
		t.Errorf("escrowed = %s after fill, want 0", got)
	}

	order, _ := env.engine.GetOrder(id)
	if order != nil {
		t.Error("order still present after fill")
	}
	closed, _ := env.engine.GetClosedOrder(id)
	if closed == nil || closed.Outcome != OutcomeFilled {
		t.Errorf("archive entry = %+v, want filled", closed)
	}
}

// TestEndToEndToken runs the same values with payment and collateral
// denominated in a fungible token, moved by allowance pulls instead of
// native transfers
func TestEndToEndToken(t *testing.T) {
	env := newTestEnv(t)

	env.tokens.Mint(usdToken, alice, n(20))
	env.tokens.Approve(usdToken, alice, vault, n(20))

	id, err := env.engine.CreatePurchaseOrder(alice, CreateParams{
		PurchaseAsset:   Token(hyplToken),
		PurchaseValue:   n(30),
		PaymentAsset:    Token(usdToken),
		PaymentValue:    n(20),
		CollateralAsset: Token(usdToken),
		CollateralValue: n(10),
	}, nil)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if got := env.engine.Custodian().Escrowed(Token(usdToken)); got.Cmp(n(20)) != 0 {
		t.Errorf("escrowed = %s, want 20", got)
	}

	env.tokens.Mint(usdToken, bob, n(10))
	env.tokens.Approve(usdToken, bob, vault, n(10))
	env.tokens.Mint(hyplToken, bob, n(30))
	env.tokens.Approve(hyplToken, bob, vault, n(30))

	if err := env.engine.CommitToPurchaseOrder(id, bob, nil); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if err := env.engine.FillPurchaseOrder(id, bob, nil); err != nil {
		t.Fatalf("fill failed: %v", err)
	}

	if got := env.tokens.BalanceOf(hyplToken, alice); got.Cmp(n(30)) != 0 {
		t.Errorf("creator purchase balance = %s, want 30", got)
	}
	if got := env.tokens.BalanceOf(usdToken, bob); got.Cmp(n(30)) != 0 {
		t.Errorf("filler payment+collateral balance = %s, want 30", got)
	}
	if got := env.engine.Custodian().Escrowed(Token(usdToken)); got.Sign() != 0 {
		t.Errorf("escrowed = %s after fill, want 0", got)
	}
}

// TestFillRetryAfterDeliveryFailure verifies that a failed purchase leg
// leaves the order Committed so the filler can retry
func TestFillRetryAfterDeliveryFailure(t *testing.T) {
	env := newTestEnv(t)
	id := env.nativeOrder(t)

	env.bank.Mint(bob, n(10))
	if err := env.engine.CommitToPurchaseOrder(id, bob, n(10)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	// No token allowance yet: the delivery leg must fail
	err := env.engine.FillPurchaseOrder(id, bob, nil)
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("err = %v, want ErrTransferFailed", err)
	}

	// Order still Committed, all escrow intact
	order, _ := env.engine.GetOrder(id)
	if order == nil || !order.Committed || order.Filler != bob {
		t.Fatalf("order = %+v, want still committed to bob", order)
	}
	if got := env.engine.Custodian().Escrowed(Native()); got.Cmp(n(30)) != 0 {
		t.Errorf("escrowed = %s, want 30", got)
	}

	// Approve and retry
	env.tokens.Mint(hyplToken, bob, n(30))
	env.tokens.Approve(hyplToken, bob, vault, n(30))
	if err := env.engine.FillPurchaseOrder(id, bob, nil); err != nil {
		t.Fatalf("retry fill failed: %v", err)
	}
	if got := env.tokens.BalanceOf(hyplToken, alice); got.Cmp(n(30)) != 0 {
		t.Errorf("creator token balance = %s, want 30", got)
	}
}

// TestEvents checks that each successful operation emits exactly one
// notification carrying the order id
func TestEvents(t *testing.T) {
	env := newTestEnv(t)

	var events []Event
	env.engine.SetEmitter(emitterFunc(func(ev Event) { events = append(events, ev) }))

	id := env.nativeOrder(t)
	env.bank.Mint(bob, n(10))
	env.tokens.Mint(hyplToken, bob, n(30))
	env.tokens.Approve(hyplToken, bob, vault, n(30))

	if err := env.engine.CommitToPurchaseOrder(id, bob, n(10)); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	// Failed operations emit nothing
	env.engine.CommitToPurchaseOrder(id, carol, n(10))
	if err := env.engine.FillPurchaseOrder(id, bob, nil); err != nil {
		t.Fatalf("fill failed: %v", err)
	}

	want := []EventType{EventOrderCreated, EventOrderCommitted, EventOrderFilled}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, ev := range events {
		if ev.Type != want[i] {
			t.Errorf("event %d = %s, want %s", i, ev.Type, want[i])
		}
		if ev.OrderID != id {
			t.Errorf("event %d order id = %d, want %d", i, ev.OrderID, id)
		}
	}
}

type emitterFunc func(Event)

func (f emitterFunc) Emit(ev Event) { f(ev) }
