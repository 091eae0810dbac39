package tokenmeta

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	solanago "github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"solana-swap-indexer/internal/domain"
	"solana-swap-indexer/internal/logger"
	"solana-swap-indexer/internal/solana"
)

// SPL token mint account layout.
const (
	mintAccountLen = 82
	supplyOffset   = 36
	decimalsOffset = 44
)

// RPCLoader reads the SPL mint account for decimals and supply, and the Metaplex
// metadata account for name and symbol.
type RPCLoader struct {
	rpc solana.AccountReader
	log *zap.SugaredLogger
}

var _ Loader = (*RPCLoader)(nil)

// NewRPCLoader creates a loader backed by rpc.
func NewRPCLoader(rpc solana.AccountReader, log *zap.SugaredLogger) *RPCLoader {
	return &RPCLoader{rpc: rpc, log: logger.Nop(log)}
}

// Load returns metadata for mint. A missing mint account yields ErrNotFound;
// missing Metaplex metadata leaves Name and Symbol nil.
func (l *RPCLoader) Load(ctx context.Context, mint string) (*domain.Token, error) {
	mintInfo, err := l.rpc.GetAccountInfo(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("get mint account %s: %w", mint, err)
	}
	if mintInfo == nil {
		return nil, fmt.Errorf("%s: %w", mint, ErrNotFound)
	}

	token := &domain.Token{Mint: mint}
	if err := parseMintData(mintInfo.Data, token); err != nil {
		return nil, fmt.Errorf("mint %s: %w", mint, err)
	}

	metadataPDA := deriveMetadataPDA(mint)
	if metadataPDA == "" {
		return token, nil
	}
	metaInfo, err := l.rpc.GetAccountInfo(ctx, metadataPDA)
	if err != nil {
		l.log.Debugw("metaplex metadata unavailable", "mint", mint, "err", err)
		return token, nil
	}
	if metaInfo != nil {
		parseMetaplexData(metaInfo.Data, token)
	}
	return token, nil
}

// parseMintData reads supply and decimals from an SPL Token mint account:
// mintAuthority Option<Pubkey> (36), supply u64, decimals u8, isInitialized bool,
// freezeAuthority Option<Pubkey> (36).
func parseMintData(data []byte, token *domain.Token) error {
	if len(data) < mintAccountLen {
		return fmt.Errorf("mint data too short: %d", len(data))
	}
	token.Supply = binary.LittleEndian.Uint64(data[supplyOffset : supplyOffset+8])
	token.Decimals = data[decimalsOffset]
	return nil
}

// deriveMetadataPDA returns the Metaplex metadata account of mint, or "" for an invalid mint.
func deriveMetadataPDA(mint string) string {
	key, err := solanago.PublicKeyFromBase58(mint)
	if err != nil {
		return ""
	}
	addr, _, err := solanago.FindTokenMetadataAddress(key)
	if err != nil {
		return ""
	}
	return addr.String()
}

// parseMetaplexData reads name and symbol from a MetadataV1 account:
// key u8, updateAuthority, mint, then borsh strings name, symbol, uri.
func parseMetaplexData(data []byte, token *domain.Token) {
	if len(data) < 100 || data[0] != 4 {
		return
	}

	offset := 65
	name, offset, ok := readBorshString(data, offset, 100)
	if !ok {
		return
	}
	if name != "" {
		token.Name = &name
	}

	symbol, _, ok := readBorshString(data, offset, 20)
	if ok && symbol != "" {
		token.Symbol = &symbol
	}
}

func readBorshString(data []byte, offset, maxLen int) (string, int, bool) {
	if offset+4 > len(data) {
		return "", offset, false
	}
	n := int(binary.LittleEndian.Uint32(data[offset:]))
	offset += 4
	if n > maxLen || offset+n > len(data) {
		return "", offset, false
	}
	s := strings.TrimRight(string(data[offset:offset+n]), "\x00")
	return s, offset + n, true
}
