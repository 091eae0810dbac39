package decoder

import (
	"bytes"
	"math/rand"
	"testing"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-swap-indexer/internal/domain"
	"solana-swap-indexer/internal/solana"
)

var (
	wallet    = solanago.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	trader    = solanago.MustPublicKeyFromBase58("7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU")
	mintA     = solanago.MustPublicKeyFromBase58("DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263")
	mintB     = solanago.MustPublicKeyFromBase58(domain.USDCMint)
	mintC     = solanago.MustPublicKeyFromBase58(domain.WrappedSOLMint)
	ammKey    = solanago.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	otherProg = solanago.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
)

func encodeEvent(t *testing.T, disc [discriminatorLen]byte, v interface{}) solanago.Base58 {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(disc[:])
	require.NoError(t, bin.NewBorshEncoder(&buf).Encode(v))
	return buf.Bytes()
}

// buildTx creates a transaction whose account keys are [wallet, program, token program]
// and whose inner instructions are grouped under top-level indexes.
func buildTx(program solanago.PublicKey, inner map[uint16][]solanago.CompiledInstruction, topLevel int) solana.Transaction {
	tx := solana.Transaction{
		Signature:   "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW",
		AccountKeys: solanago.PublicKeySlice{wallet, program, otherProg},
	}
	for i := 0; i < topLevel; i++ {
		tx.Instructions = append(tx.Instructions, solanago.CompiledInstruction{ProgramIDIndex: 1})
		if ixs, ok := inner[uint16(i)]; ok {
			tx.InnerInstructions = append(tx.InnerInstructions, rpc.InnerInstruction{Index: uint16(i), Instructions: toRPC(ixs)})
		}
	}
	return tx
}

func toRPC(ixs []solanago.CompiledInstruction) []rpc.CompiledInstruction {
	out := make([]rpc.CompiledInstruction, len(ixs))
	for i, ix := range ixs {
		out[i] = rpc.CompiledInstruction{ProgramIDIndex: ix.ProgramIDIndex, Accounts: ix.Accounts, Data: ix.Data}
	}
	return out
}

func hop(t *testing.T, in solanago.PublicKey, inAmt uint64, out solanago.PublicKey, outAmt uint64) solanago.CompiledInstruction {
	return solanago.CompiledInstruction{
		ProgramIDIndex: 1,
		Data: encodeEvent(t, jupiterRouteEventDiscriminator, jupiterRouteEvent{
			Amm: ammKey, InputMint: in, InputAmount: inAmt, OutputMint: out, OutputAmount: outAmt,
		}),
	}
}

func TestEventDiscriminators(t *testing.T) {
	assert.Equal(t, [16]byte{228, 69, 165, 46, 81, 203, 154, 29, 64, 198, 205, 232, 38, 8, 113, 226}, jupiterRouteEventDiscriminator)
	assert.Equal(t, [16]byte{228, 69, 165, 46, 81, 203, 154, 29, 189, 219, 127, 211, 78, 230, 97, 238}, pumpTradeEventDiscriminator)
}

func TestRegistry_DecodeBlock(t *testing.T) {
	jupTx := buildTx(JupiterProgramID, map[uint16][]solanago.CompiledInstruction{
		0: {hop(t, mintA, 1_000, mintC, 5_000)},
	}, 1)
	pumpTx := buildTx(PumpFunProgramID, map[uint16][]solanago.CompiledInstruction{
		0: {pumpTrade(t, pumpTradeEvent{Mint: mintA, SolAmount: 10, TokenAmount: 20, IsBuy: true, User: trader})},
	}, 1)
	plain := buildTx(otherProg, nil, 1)

	block := &solana.Block{Slot: 77, BlockTime: 1700000000, Transactions: []solana.Transaction{plain, jupTx, pumpTx}}
	out := NewRegistry().DecodeBlock(block)

	require.Len(t, out[domain.VenueJupiter], 1)
	require.Len(t, out[domain.VenuePumpFun], 1)
	assert.Equal(t, uint64(77), out[domain.VenueJupiter][0].Slot)
	assert.Equal(t, int64(1700000000), out[domain.VenuePumpFun][0].BlockTime)
}

func TestRegistry_DecodersRegistered(t *testing.T) {
	var venues []domain.Venue
	for _, d := range NewRegistry().Decoders() {
		venues = append(venues, d.Venue())
	}
	assert.Equal(t, []domain.Venue{domain.VenueJupiter, domain.VenuePumpFun}, venues)
}

func TestDecoders_NeverPanicOnGarbage(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	decoders := NewRegistry().Decoders()

	for i := 0; i < 500; i++ {
		data := make([]byte, rng.Intn(140))
		rng.Read(data)
		// Keep a valid discriminator on some inputs so the payload path is exercised.
		if i%2 == 0 && len(data) >= discriminatorLen {
			if i%4 == 0 {
				copy(data, jupiterRouteEventDiscriminator[:])
			} else {
				copy(data, pumpTradeEventDiscriminator[:])
			}
		}
		for _, d := range decoders {
			tx := buildTx(d.ProgramID(), map[uint16][]solanago.CompiledInstruction{
				0: {
					{ProgramIDIndex: 1, Data: data},
					{ProgramIDIndex: 200, Data: data}, // out of range program index
				},
				5: {{ProgramIDIndex: 1, Data: data}}, // orphan inner set
			}, 1)
			assert.NotPanics(t, func() { d.Decode(&tx, 1, 0) })
		}
	}
}
