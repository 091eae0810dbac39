package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-swap-indexer/internal/decoder"
	"solana-swap-indexer/internal/domain"
	"solana-swap-indexer/internal/solana"
	"solana-swap-indexer/internal/storage"
	"solana-swap-indexer/internal/storage/memory"
	"solana-swap-indexer/internal/tokenmeta"
)

const (
	memeMint  = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	otherMint = "JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN"
	walletA   = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	walletB   = "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
)

// fakeDecoder returns canned events keyed by transaction signature.
type fakeDecoder struct {
	venue  domain.Venue
	events map[string][]domain.SwapEvent
}

func (f *fakeDecoder) Venue() domain.Venue           { return f.venue }
func (f *fakeDecoder) ProgramID() solanago.PublicKey { return solanago.PublicKey{} }

func (f *fakeDecoder) Decode(tx *solana.Transaction, slot uint64, blockTime int64) []domain.SwapEvent {
	var out []domain.SwapEvent
	for _, ev := range f.events[tx.Signature] {
		ev.Venue = f.venue
		ev.Signature = tx.Signature
		ev.Slot = slot
		ev.BlockTime = blockTime
		out = append(out, ev)
	}
	return out
}

// fixture is a pipeline over a memory store with scripted decoders.
type fixture struct {
	store   *memory.Store
	jupiter *fakeDecoder
	pump    *fakeDecoder
	sink    *recordingSink
	loads   map[string]int
	loadErr error
	mu      sync.Mutex
}

func newFixture(t *testing.T) (*fixture, *Pipeline) {
	t.Helper()
	f := &fixture{
		store:   memory.NewStore(),
		jupiter: &fakeDecoder{venue: domain.VenueJupiter, events: map[string][]domain.SwapEvent{}},
		pump:    &fakeDecoder{venue: domain.VenuePumpFun, events: map[string][]domain.SwapEvent{}},
		sink:    &recordingSink{},
		loads:   map[string]int{},
	}
	registry := &decoder.Registry{}
	registry.Register(f.jupiter)
	registry.Register(f.pump)

	p, err := NewPipeline(PipelineOptions{
		Store:    f.store,
		Decoders: registry,
		Tokens:   tokenmeta.LoaderFunc(f.load),
		Sink:     f.sink,
	})
	require.NoError(t, err)
	return f, p
}

func (f *fixture) load(_ context.Context, mint string) (*domain.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads[mint]++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return &domain.Token{Mint: mint, Decimals: domain.CurveTokenDecimals, Supply: 1_000_000_000_000_000}, nil
}

type recordingSink struct {
	mu      sync.Mutex
	records []storage.SwapRecord
	err     error
}

func (s *recordingSink) ExportSwaps(_ context.Context, swaps []storage.SwapRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, swaps...)
	return nil
}

func blockOf(slot uint64, sigs ...string) *solana.Block {
	b := &solana.Block{Slot: slot, BlockTime: 1_700_000_000 + int64(slot)}
	for _, sig := range sigs {
		b.Transactions = append(b.Transactions, solana.Transaction{Signature: sig})
	}
	return b
}

func pumpBuy(wallet string, sol, tokens, vsol, vtok uint64) domain.SwapEvent {
	return domain.SwapEvent{
		Wallet:    wallet,
		InputMint: domain.WrappedSOLMint, InputAmount: sol,
		OutputMint: memeMint, OutputAmount: tokens,
		Curve: &domain.CurveTrade{
			Mint: memeMint, TokenAmount: tokens, SolAmount: sol, IsBuy: true,
			VirtualSolReserves: vsol, VirtualTokenReserves: vtok,
		},
	}
}

func jupSwap(wallet, in string, inAmt uint64, out string, outAmt uint64) domain.SwapEvent {
	return domain.SwapEvent{Wallet: wallet, InputMint: in, InputAmount: inAmt, OutputMint: out, OutputAmount: outAmt}
}

func memePairID(t *testing.T, s *memory.Store) int64 {
	t.Helper()
	id, ok := s.TokenPairID(domain.MintPair{Base: memeMint, Quote: domain.WrappedSOLMint})
	require.True(t, ok, "meme/SOL pair not created")
	return id
}

func TestPipeline_CurveStateLatestBlockWins(t *testing.T) {
	f, p := newFixture(t)
	ctx := context.Background()

	reserves := map[uint64]uint64{
		100: 1_050_000_000_000_000,
		101: 1_000_000_000_000_000,
		102: 900_000_000_000_000,
	}
	for slot := uint64(100); slot <= 102; slot++ {
		sig := fmt.Sprintf("sig-%d", slot)
		f.pump.events[sig] = []domain.SwapEvent{pumpBuy(walletA, 1_000_000_000, 30_000_000_000, 30_000_000_000+slot, reserves[slot])}

		res, err := p.ProcessBlock(ctx, blockOf(slot, sig))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Inserted)
		assert.Equal(t, 1, res.CurveStates)
	}

	swaps := f.store.Swaps()
	require.Len(t, swaps, 3)
	sigs := map[string]bool{}
	for _, s := range swaps {
		sigs[s.Signature] = true
	}
	assert.Len(t, sigs, 3)

	cs, ok := f.store.CurveState(memePairID(t, f.store))
	require.True(t, ok)
	assert.Equal(t, uint64(102), cs.Slot)
	assert.Equal(t, "sig-102", cs.Signature)
	assert.Equal(t, reserves[102], cs.VirtualBaseReserves)
	assert.Equal(t, uint64(30_000_000_102), cs.VirtualQuoteReserves)
	assert.True(t, cs.Progress.Equal(domain.CurveProgress(reserves[102])))
	assert.True(t, cs.MarketCap.Equal(domain.CurveMarketCap(cs.Price)))

	slot, err := f.store.LastIndexedSlot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(102), slot)
}

func TestPipeline_SameBlockLastTradeWins(t *testing.T) {
	f, p := newFixture(t)
	ctx := context.Background()

	f.pump.events["first"] = []domain.SwapEvent{pumpBuy(walletA, 1, 1, 10, 1_000_000_000_000_000)}
	f.pump.events["second"] = []domain.SwapEvent{pumpBuy(walletB, 1, 1, 11, 990_000_000_000_000)}

	res, err := p.ProcessBlock(ctx, blockOf(50, "first", "second"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.CurveStates)

	cs, ok := f.store.CurveState(memePairID(t, f.store))
	require.True(t, ok)
	assert.Equal(t, "second", cs.Signature)
	assert.Equal(t, uint64(990_000_000_000_000), cs.VirtualBaseReserves)
}

func TestPipeline_IdempotentReingestion(t *testing.T) {
	f, p := newFixture(t)
	ctx := context.Background()

	f.pump.events["p1"] = []domain.SwapEvent{pumpBuy(walletA, 5, 7, 30_000_000_000, 1_000_000_000_000_000)}
	f.jupiter.events["j1"] = []domain.SwapEvent{jupSwap(walletB, memeMint, 2_000_000, domain.USDCMint, 3_000_000)}
	block := blockOf(200, "p1", "j1")

	first, err := p.ProcessBlock(ctx, block)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Inserted)

	stateBefore, _ := f.store.CurveState(memePairID(t, f.store))

	second, err := p.ProcessBlock(ctx, block)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 0, second.CurveStates)

	assert.Len(t, f.store.Swaps(), 2)
	slot, err := f.store.LastIndexedSlot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), slot)

	stateAfter, _ := f.store.CurveState(memePairID(t, f.store))
	assert.Equal(t, stateBefore, stateAfter)

	// Only the first run exported anything.
	assert.Len(t, f.sink.records, 2)
}

func TestPipeline_RouteThroughCurveKeepsBothVenues(t *testing.T) {
	f, p := newFixture(t)
	ctx := context.Background()

	// One transaction: a Jupiter route whose hop is a pump.fun buy.
	f.jupiter.events["routed"] = []domain.SwapEvent{jupSwap(walletA, domain.WrappedSOLMint, 1_000_000_000, memeMint, 30_000_000_000)}
	f.pump.events["routed"] = []domain.SwapEvent{pumpBuy(walletB, 1_000_000_000, 30_000_000_000, 31_000_000_000, 1_040_000_000_000_000)}

	res, err := p.ProcessBlock(ctx, blockOf(400, "routed"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 1, res.CurveStates)

	venues := map[domain.Venue]domain.Swap{}
	for _, s := range f.store.Swaps() {
		venues[s.Venue] = s
	}
	require.Len(t, venues, 2)
	assert.Nil(t, venues[domain.VenueJupiter].VirtualBaseReserves)
	require.NotNil(t, venues[domain.VenuePumpFun].VirtualBaseReserves)
	assert.Equal(t, uint64(1_040_000_000_000_000), *venues[domain.VenuePumpFun].VirtualBaseReserves)

	cs, ok := f.store.CurveState(memePairID(t, f.store))
	require.True(t, ok)
	assert.Equal(t, "routed", cs.Signature)
	assert.Equal(t, uint64(400), cs.Slot)

	require.Len(t, f.sink.records, 2)
	wallets := map[domain.Venue]string{}
	for _, rec := range f.sink.records {
		wallets[rec.Venue] = rec.Wallet
	}
	assert.Equal(t, walletA, wallets[domain.VenueJupiter])
	assert.Equal(t, walletB, wallets[domain.VenuePumpFun])

	again, err := p.ProcessBlock(ctx, blockOf(400, "routed"))
	require.NoError(t, err)
	assert.Equal(t, 0, again.Inserted)
	assert.Len(t, f.store.Swaps(), 2)
}

func TestPipeline_ReplayOfOlderBlockKeepsCurveState(t *testing.T) {
	f, p := newFixture(t)
	ctx := context.Background()

	f.pump.events["old"] = []domain.SwapEvent{pumpBuy(walletA, 1, 1, 10, 1_000_000_000_000_000)}
	f.pump.events["new"] = []domain.SwapEvent{pumpBuy(walletA, 1, 1, 20, 800_000_000_000_000)}

	_, err := p.ProcessBlock(ctx, blockOf(300, "new"))
	require.NoError(t, err)
	_, err = p.ProcessBlock(ctx, blockOf(299, "old"))
	require.NoError(t, err)

	cs, _ := f.store.CurveState(memePairID(t, f.store))
	assert.Equal(t, uint64(300), cs.Slot)
}

func TestPipeline_OrientationAndPrice(t *testing.T) {
	f, p := newFixture(t)
	ctx := context.Background()

	// Sell 2 meme (6 decimals) for 3 USDC (6 decimals), then buy meme with USDC.
	f.jupiter.events["sell"] = []domain.SwapEvent{jupSwap(walletA, memeMint, 2_000_000, domain.USDCMint, 3_000_000)}
	f.jupiter.events["buy"] = []domain.SwapEvent{jupSwap(walletA, domain.USDCMint, 1_000_000, memeMint, 500_000)}

	_, err := p.ProcessBlock(ctx, blockOf(10, "sell", "buy"))
	require.NoError(t, err)

	swaps := f.store.Swaps()
	require.Len(t, swaps, 2)

	sell, buy := swaps[0], swaps[1]
	assert.False(t, sell.IsBuy)
	assert.Equal(t, uint64(2_000_000), sell.AmountBase)
	assert.Equal(t, uint64(3_000_000), sell.AmountQuote)
	assert.True(t, sell.Price.Equal(decimal.RequireFromString("1.5")), sell.Price.String())
	assert.Nil(t, sell.VirtualBaseReserves)
	assert.Nil(t, sell.CurveProgress)

	assert.True(t, buy.IsBuy)
	assert.Equal(t, uint64(500_000), buy.AmountBase)
	assert.Equal(t, uint64(1_000_000), buy.AmountQuote)
	assert.True(t, buy.Price.Equal(decimal.NewFromInt(2)), buy.Price.String())
	assert.Equal(t, sell.AddressID, buy.AddressID)
	assert.Equal(t, int64(1_700_000_010), buy.Timestamp.Unix())

	// Quote assets come from the static set, never the loader.
	assert.Equal(t, map[string]int{memeMint: 1}, f.loads)
}

func TestPipeline_DropsUnsupportedAndZeroAmount(t *testing.T) {
	f, p := newFixture(t)
	ctx := context.Background()

	f.jupiter.events["exotic"] = []domain.SwapEvent{jupSwap(walletA, memeMint, 10, otherMint, 20)}
	f.jupiter.events["stable"] = []domain.SwapEvent{jupSwap(walletA, domain.USDCMint, 10, domain.USDTMint, 10)}
	f.jupiter.events["zero"] = []domain.SwapEvent{jupSwap(walletA, memeMint, 0, domain.USDCMint, 20)}
	f.jupiter.events["ok"] = []domain.SwapEvent{jupSwap(walletB, memeMint, 10, domain.WrappedSOLMint, 20)}

	res, err := p.ProcessBlock(ctx, blockOf(11, "exotic", "stable", "zero", "ok"))
	require.NoError(t, err)
	assert.Equal(t, 4, res.Decoded)
	assert.Equal(t, 3, res.Dropped)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, f.store.AddressCount())
}

func TestPipeline_EmptyBlockAdvancesProgress(t *testing.T) {
	f, p := newFixture(t)
	ctx := context.Background()

	res, err := p.ProcessBlock(ctx, blockOf(42, "nothing"))
	require.NoError(t, err)
	assert.Zero(t, res.Inserted)

	slot, err := f.store.LastIndexedSlot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), slot)
	assert.Empty(t, f.sink.records)
}

func TestPipeline_MetadataFailureAbortsBlock(t *testing.T) {
	f, p := newFixture(t)
	ctx := context.Background()

	boom := errors.New("rpc unavailable")
	f.loadErr = boom
	f.pump.events["p1"] = []domain.SwapEvent{pumpBuy(walletA, 1, 1, 10, 1_000_000_000_000_000)}
	block := blockOf(60, "p1")

	_, err := p.ProcessBlock(ctx, block)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var unresolved *storage.UnresolvedError
	require.ErrorAs(t, err, &unresolved)

	assert.Empty(t, f.store.Swaps())
	assert.Zero(t, f.store.AddressCount())
	_, err = f.store.LastIndexedSlot(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Nothing from the failed attempt reached the caches.
	assert.Zero(t, p.addresses.Len())
	assert.Zero(t, p.tokenRows.Len())
	assert.Zero(t, p.tokenPairs.Len())

	f.loadErr = nil
	res, err := p.ProcessBlock(ctx, block)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, p.tokenPairs.Len())
}

func TestPipeline_StorageFailureRollsBack(t *testing.T) {
	f, p := newFixture(t)
	ctx := context.Background()

	f.jupiter.events["j"] = []domain.SwapEvent{jupSwap(walletA, memeMint, 10, domain.USDCMint, 20)}
	block := blockOf(70, "j")

	for _, op := range []string{"InsertSwaps", "UpsertCurveStates", "SetLastIndexedSlot", "Commit"} {
		f.store.FailNext(op, errors.New("injected "+op))
		_, err := p.ProcessBlock(ctx, block)
		require.Error(t, err, op)
		assert.Contains(t, err.Error(), "injected "+op)
		assert.Empty(t, f.store.Swaps(), op)
		assert.Zero(t, p.addresses.Len(), op)
	}

	res, err := p.ProcessBlock(ctx, block)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, p.addresses.Len())
}

func TestPipeline_CachesSkipStorageLookups(t *testing.T) {
	f, p := newFixture(t)
	ctx := context.Background()

	f.jupiter.events["a"] = []domain.SwapEvent{jupSwap(walletA, memeMint, 10, domain.USDCMint, 20)}
	f.jupiter.events["b"] = []domain.SwapEvent{jupSwap(walletA, memeMint, 11, domain.USDCMint, 21)}

	_, err := p.ProcessBlock(ctx, blockOf(1, "a"))
	require.NoError(t, err)

	// Every storage lookup would fail now; the second block is served from cache.
	f.store.FailNext("LookupAddresses", errors.New("should not be called"))
	f.store.FailNext("LookupTokenPairs", errors.New("should not be called"))
	_, err = p.ProcessBlock(ctx, blockOf(2, "b"))
	require.NoError(t, err)
	assert.Len(t, f.store.Swaps(), 2)
}

func TestPipeline_ExportFailureDoesNotFailBlock(t *testing.T) {
	f, p := newFixture(t)
	ctx := context.Background()
	f.sink.err = errors.New("clickhouse down")

	f.jupiter.events["j"] = []domain.SwapEvent{jupSwap(walletA, memeMint, 10, domain.USDCMint, 20)}
	res, err := p.ProcessBlock(ctx, blockOf(5, "j"))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
}

func TestPipeline_ExportRecords(t *testing.T) {
	f, p := newFixture(t)
	ctx := context.Background()

	f.pump.events["p"] = []domain.SwapEvent{pumpBuy(walletB, 3, 4, 10, 1_000_000_000_000_000)}
	_, err := p.ProcessBlock(ctx, blockOf(8, "p"))
	require.NoError(t, err)

	require.Len(t, f.sink.records, 1)
	rec := f.sink.records[0]
	assert.Equal(t, walletB, rec.Wallet)
	assert.Equal(t, domain.MintPair{Base: memeMint, Quote: domain.WrappedSOLMint}, rec.Pair)
	assert.NotZero(t, rec.ID)
	assert.Equal(t, domain.VenuePumpFun, rec.Venue)
	require.NotNil(t, rec.CurveProgress)
}

func TestNewPipeline_RequiresStore(t *testing.T) {
	_, err := NewPipeline(PipelineOptions{})
	assert.Error(t, err)
}
