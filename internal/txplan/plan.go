// Package txplan assembles ordered, dependent sub-operations into one
// atomic transaction unit. Nothing is submitted from here: a Builder
// accumulates ops and hands out typed handles (coins, flash-loan receipts),
// and Finalize either yields a complete Plan or an error. There is no
// partial-completion state to roll back.
//
// A Builder is single-owner and not safe for concurrent use. Every
// composition starts from a fresh Builder; reusing one across compositions
// is a programming error and is rejected once finalized.
package txplan

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/curg-13/levkit/internal/apperror"
	"github.com/curg-13/levkit/internal/asset"
)

// Kind classifies an op for inspection and dry-run output.
type Kind string

const (
	KindFlashBorrow    Kind = "flash_borrow"
	KindFlashRepay     Kind = "flash_repay"
	KindSwap           Kind = "swap"
	KindMerge          Kind = "merge"
	KindRefreshOracles Kind = "refresh_oracles"
	KindDeposit        Kind = "deposit"
	KindBorrow         Kind = "borrow"
	KindRepay          Kind = "repay"
	KindWithdraw       Kind = "withdraw"
	KindUnlock         Kind = "unlock"
	KindRelock         Kind = "relock"
	KindTransfer       Kind = "transfer"
)

// Op is one sub-operation of the unit. Call carries the adapter-specific
// payload (e.g. target address and calldata) and is opaque to the core.
type Op struct {
	Kind  Kind
	Label string
	Call  any
}

// Builder accumulates ops for one composition. Handles issued by a builder
// are only meaningful within it.
type Builder struct {
	sender     common.Address
	ops        []Op
	nextHandle int
	receipts   map[int]bool // receipt id -> consumed
	transfers  []Coin
	finalized  bool
}

// NewBuilder starts a fresh composition on behalf of sender.
func NewBuilder(sender common.Address) *Builder {
	return &Builder{
		sender:   sender,
		receipts: make(map[int]bool),
	}
}

// Sender returns the address the plan is built for.
func (b *Builder) Sender() common.Address {
	return b.sender
}

// Append adds an op to the unit.
func (b *Builder) Append(kind Kind, label string, call any) error {
	if b.finalized {
		return apperror.New(apperror.CodePlanFinalized, apperror.WithContext(label))
	}
	b.ops = append(b.ops, Op{Kind: kind, Label: label, Call: call})
	return nil
}

// NewCoin issues a handle for a coin produced by the op just appended.
func (b *Builder) NewCoin(a *asset.Asset) Coin {
	b.nextHandle++
	return Coin{id: b.nextHandle, asset: a}
}

// NewReceipt issues a single-use flash-loan receipt handle.
func (b *Builder) NewReceipt() Receipt {
	b.nextHandle++
	b.receipts[b.nextHandle] = false
	return Receipt{id: b.nextHandle}
}

// ConsumeReceipt marks a receipt as repaid. Consuming twice or consuming a
// handle from another builder is an error.
func (b *Builder) ConsumeReceipt(r Receipt) error {
	consumed, ok := b.receipts[r.id]
	if !ok {
		return apperror.New(apperror.CodeInvalidState,
			apperror.WithMessage("receipt does not belong to this plan"))
	}
	if consumed {
		return apperror.New(apperror.CodeReceiptAlreadyUsed)
	}
	b.receipts[r.id] = true
	return nil
}

// TransferToSender schedules coins to be sent back to the sender at the end
// of the unit. Invalid (zero) handles are skipped so callers can pass
// optional leftovers unconditionally.
func (b *Builder) TransferToSender(coins ...Coin) error {
	for _, c := range coins {
		if !c.Valid() {
			continue
		}
		if err := b.Append(KindTransfer, fmt.Sprintf("transfer %s to sender", c.asset.Symbol()), nil); err != nil {
			return err
		}
		b.transfers = append(b.transfers, c)
	}
	return nil
}

// Len returns the number of ops appended so far.
func (b *Builder) Len() int {
	return len(b.ops)
}

// Finalize seals the builder. It fails if any issued receipt was never
// consumed, since the unit would be void on-chain.
func (b *Builder) Finalize() (*Plan, error) {
	if b.finalized {
		return nil, apperror.New(apperror.CodePlanFinalized)
	}
	for id, consumed := range b.receipts {
		if !consumed {
			return nil, apperror.New(apperror.CodeUnconsumedReceipt,
				apperror.WithContext(fmt.Sprintf("receipt #%d", id)))
		}
	}
	b.finalized = true
	ops := make([]Op, len(b.ops))
	copy(ops, b.ops)
	return &Plan{sender: b.sender, ops: ops}, nil
}

// Plan is a sealed, ordered transaction unit ready for submission by the
// execution layer.
type Plan struct {
	sender common.Address
	ops    []Op
}

// Sender returns the address the plan was built for.
func (p *Plan) Sender() common.Address {
	return p.sender
}

// Ops returns a copy of the ordered sub-operations.
func (p *Plan) Ops() []Op {
	ops := make([]Op, len(p.ops))
	copy(ops, p.ops)
	return ops
}

// Describe renders the unit for dry-run output.
func (p *Plan) Describe() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "transaction unit for %s (%d ops)\n", p.sender.Hex(), len(p.ops))
	for i, op := range p.ops {
		fmt.Fprintf(&sb, "  %2d. [%s] %s\n", i+1, op.Kind, op.Label)
	}
	return sb.String()
}
