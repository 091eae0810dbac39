// Package decoder turns confirmed transactions into venue swap events.
package decoder

import (
	"bytes"

	solanago "github.com/gagliardetto/solana-go"

	"solana-swap-indexer/internal/domain"
	"solana-swap-indexer/internal/solana"
)

// Decoder extracts swap events for one venue. Implementations are pure and
// never fail: undecodable instructions are skipped.
type Decoder interface {
	Venue() domain.Venue
	ProgramID() solanago.PublicKey
	Decode(tx *solana.Transaction, slot uint64, blockTime int64) []domain.SwapEvent
}

// anchorEventTag prefixes every Anchor self-CPI event instruction.
var anchorEventTag = [8]byte{228, 69, 165, 46, 81, 203, 154, 29}

const discriminatorLen = 16

// Registry runs a set of venue decoders over transactions.
type Registry struct {
	decoders []Decoder
}

// NewRegistry creates a registry with the Jupiter and pump.fun decoders registered.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(NewJupiter())
	r.Register(NewPumpFun())
	return r
}

// Register adds a decoder.
func (r *Registry) Register(d Decoder) {
	r.decoders = append(r.decoders, d)
}

// Decoders returns the registered decoders in registration order.
func (r *Registry) Decoders() []Decoder {
	return r.decoders
}

// DecodeBlock decodes every transaction of block and groups events by venue.
// Within a venue, events keep transaction order.
func (r *Registry) DecodeBlock(block *solana.Block) map[domain.Venue][]domain.SwapEvent {
	out := make(map[domain.Venue][]domain.SwapEvent, len(r.decoders))
	for i := range block.Transactions {
		tx := &block.Transactions[i]
		for _, d := range r.decoders {
			if events := d.Decode(tx, block.Slot, block.BlockTime); len(events) > 0 {
				out[d.Venue()] = append(out[d.Venue()], events...)
			}
		}
	}
	return out
}

// eventPayload returns the event body of ix when it was issued by program and
// starts with discriminator.
func eventPayload(tx *solana.Transaction, ix solanago.CompiledInstruction, program solanago.PublicKey, discriminator [discriminatorLen]byte) ([]byte, bool) {
	pid, ok := tx.ProgramID(ix)
	if !ok || !pid.Equals(program) {
		return nil, false
	}
	data := []byte(ix.Data)
	if len(data) < discriminatorLen || !bytes.Equal(data[:discriminatorLen], discriminator[:]) {
		return nil, false
	}
	return data[discriminatorLen:], true
}

// eventDiscriminator joins the Anchor event tag and an event's own 8-byte discriminator.
func eventDiscriminator(event [8]byte) [discriminatorLen]byte {
	var d [discriminatorLen]byte
	copy(d[:8], anchorEventTag[:])
	copy(d[8:], event[:])
	return d
}

// eligible reports whether tx succeeded and references program.
func eligible(tx *solana.Transaction, program solanago.PublicKey) bool {
	return !tx.Failed && tx.HasAccount(program)
}
