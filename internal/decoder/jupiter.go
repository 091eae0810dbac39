package decoder

import (
	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"

	"solana-swap-indexer/internal/domain"
	"solana-swap-indexer/internal/solana"
)

// JupiterProgramID is the Jupiter aggregator v6 program.
var JupiterProgramID = solanago.MustPublicKeyFromBase58("JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4")

// jupiterRouteEventDiscriminator marks the SwapEvent emitted for every route hop.
var jupiterRouteEventDiscriminator = eventDiscriminator([8]byte{64, 198, 205, 232, 38, 8, 113, 226})

const jupiterRouteEventLen = 32 + 32 + 8 + 32 + 8

// jupiterRouteEvent is one hop of a routed swap.
type jupiterRouteEvent struct {
	Amm          solanago.PublicKey
	InputMint    solanago.PublicKey
	InputAmount  uint64
	OutputMint   solanago.PublicKey
	OutputAmount uint64
}

// Route instructions and the account position of their user transfer authority.
var jupiterRouteInstructions = map[[8]byte]int{
	{229, 23, 203, 151, 122, 227, 173, 42}:  1, // route
	{150, 86, 71, 116, 167, 93, 14, 104}:    1, // route_with_token_ledger
	{208, 51, 239, 151, 123, 43, 237, 92}:   1, // exact_out_route
	{193, 32, 155, 51, 65, 214, 156, 129}:   2, // shared_accounts_route
	{230, 121, 143, 80, 119, 159, 106, 170}: 2, // shared_accounts_route_with_token_ledger
	{176, 209, 105, 168, 154, 125, 69, 62}:  2, // shared_accounts_exact_out_route
}

// Jupiter decodes routed swaps. Each route yields one event made of its first
// hop's input and its last hop's output.
type Jupiter struct{}

var _ Decoder = (*Jupiter)(nil)

// NewJupiter creates a Jupiter decoder.
func NewJupiter() *Jupiter {
	return &Jupiter{}
}

func (*Jupiter) Venue() domain.Venue { return domain.VenueJupiter }

func (*Jupiter) ProgramID() solanago.PublicKey { return JupiterProgramID }

// jupiterRoute is the hops of one route instruction and the wallet that signed for it.
type jupiterRoute struct {
	authority solanago.PublicKey
	hops      []jupiterRouteEvent
}

// Decode returns one event per executed route. Routes invoked through CPI under
// the same top-level instruction are reported separately.
func (j *Jupiter) Decode(tx *solana.Transaction, slot uint64, blockTime int64) []domain.SwapEvent {
	if !eligible(tx, JupiterProgramID) {
		return nil
	}

	var events []domain.SwapEvent
	for i, top := range tx.Instructions {
		for _, route := range j.routes(tx, i, top) {
			if len(route.hops) == 0 {
				continue
			}
			first, last := route.hops[0], route.hops[len(route.hops)-1]

			wallet := route.authority
			if wallet.IsZero() {
				wallet = tx.FeePayer()
			}
			ev := domain.SwapEvent{
				Venue:        domain.VenueJupiter,
				Signature:    tx.Signature,
				Slot:         slot,
				BlockTime:    blockTime,
				Wallet:       wallet.String(),
				InputMint:    first.InputMint.String(),
				InputAmount:  first.InputAmount,
				OutputMint:   last.OutputMint.String(),
				OutputAmount: last.OutputAmount,
			}
			if ev.HasZeroAmount() {
				continue
			}
			events = append(events, ev)
		}
	}
	return events
}

// routes splits the instructions under top-level index into routes. A route
// instruction opens a new route; route events attach to the open one.
func (j *Jupiter) routes(tx *solana.Transaction, index int, top solanago.CompiledInstruction) []jupiterRoute {
	var (
		routes []jupiterRoute
		open   *jupiterRoute
	)
	start := func(authority solanago.PublicKey) {
		routes = append(routes, jupiterRoute{authority: authority})
		open = &routes[len(routes)-1]
	}

	if authority, ok := routeAuthority(tx, top); ok {
		start(authority)
	}
	for _, ix := range tx.InnerInstructionsFor(index) {
		if authority, ok := routeAuthority(tx, ix); ok {
			start(authority)
			continue
		}
		hop, ok := decodeRouteEvent(tx, ix)
		if !ok {
			continue
		}
		if open == nil {
			start(solanago.PublicKey{})
		}
		open.hops = append(open.hops, hop)
	}
	return routes
}

// routeAuthority reports whether ix is a Jupiter route instruction and returns
// its user transfer authority, which is zero when the account is missing.
func routeAuthority(tx *solana.Transaction, ix solanago.CompiledInstruction) (solanago.PublicKey, bool) {
	pid, ok := tx.ProgramID(ix)
	if !ok || !pid.Equals(JupiterProgramID) || len(ix.Data) < 8 {
		return solanago.PublicKey{}, false
	}
	var disc [8]byte
	copy(disc[:], ix.Data[:8])
	pos, ok := jupiterRouteInstructions[disc]
	if !ok {
		return solanago.PublicKey{}, false
	}
	if pos >= len(ix.Accounts) {
		return solanago.PublicKey{}, true
	}
	authority, _ := tx.Account(ix.Accounts[pos])
	return authority, true
}

func decodeRouteEvent(tx *solana.Transaction, ix solanago.CompiledInstruction) (jupiterRouteEvent, bool) {
	var hop jupiterRouteEvent
	payload, ok := eventPayload(tx, ix, JupiterProgramID, jupiterRouteEventDiscriminator)
	if !ok || len(payload) < jupiterRouteEventLen {
		return hop, false
	}
	if err := bin.NewBorshDecoder(payload).Decode(&hop); err != nil {
		return hop, false
	}
	return hop, true
}
