package decoder

import (
	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"

	"solana-swap-indexer/internal/domain"
	"solana-swap-indexer/internal/solana"
)

// PumpFunProgramID is the pump.fun bonding curve program.
var PumpFunProgramID = solanago.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")

var pumpTradeEventDiscriminator = eventDiscriminator([8]byte{189, 219, 127, 211, 78, 230, 97, 238})

// Newer program versions append fields after VirtualTokenReserves; they are ignored.
const pumpTradeEventLen = 32 + 8 + 8 + 1 + 32 + 8 + 8 + 8

type pumpTradeEvent struct {
	Mint                 solanago.PublicKey
	SolAmount            uint64
	TokenAmount          uint64
	IsBuy                bool
	User                 solanago.PublicKey
	Timestamp            int64
	VirtualSolReserves   uint64
	VirtualTokenReserves uint64
}

// PumpFun decodes bonding curve trades. Every curve trades its mint against SOL.
type PumpFun struct{}

var _ Decoder = (*PumpFun)(nil)

// NewPumpFun creates a pump.fun decoder.
func NewPumpFun() *PumpFun {
	return &PumpFun{}
}

func (*PumpFun) Venue() domain.Venue { return domain.VenuePumpFun }

func (*PumpFun) ProgramID() solanago.PublicKey { return PumpFunProgramID }

// Decode returns one event per TradeEvent, in instruction order.
func (p *PumpFun) Decode(tx *solana.Transaction, slot uint64, blockTime int64) []domain.SwapEvent {
	if !eligible(tx, PumpFunProgramID) {
		return nil
	}

	var events []domain.SwapEvent
	for i := range tx.Instructions {
		for _, ix := range tx.InnerInstructionsFor(i) {
			payload, ok := eventPayload(tx, ix, PumpFunProgramID, pumpTradeEventDiscriminator)
			if !ok || len(payload) < pumpTradeEventLen {
				continue
			}
			var trade pumpTradeEvent
			if err := bin.NewBorshDecoder(payload).Decode(&trade); err != nil {
				continue
			}
			if trade.SolAmount == 0 || trade.TokenAmount == 0 {
				continue
			}
			events = append(events, p.toSwapEvent(tx, &trade, slot, blockTime))
		}
	}
	return events
}

func (p *PumpFun) toSwapEvent(tx *solana.Transaction, trade *pumpTradeEvent, slot uint64, blockTime int64) domain.SwapEvent {
	mint := trade.Mint.String()
	ev := domain.SwapEvent{
		Venue:     domain.VenuePumpFun,
		Signature: tx.Signature,
		Slot:      slot,
		BlockTime: blockTime,
		Wallet:    trade.User.String(),
		Curve: &domain.CurveTrade{
			Mint:                 mint,
			TokenAmount:          trade.TokenAmount,
			SolAmount:            trade.SolAmount,
			IsBuy:                trade.IsBuy,
			VirtualTokenReserves: trade.VirtualTokenReserves,
			VirtualSolReserves:   trade.VirtualSolReserves,
		},
	}
	if trade.IsBuy {
		ev.InputMint, ev.InputAmount = domain.WrappedSOLMint, trade.SolAmount
		ev.OutputMint, ev.OutputAmount = mint, trade.TokenAmount
	} else {
		ev.InputMint, ev.InputAmount = mint, trade.TokenAmount
		ev.OutputMint, ev.OutputAmount = domain.WrappedSOLMint, trade.SolAmount
	}
	return ev
}
