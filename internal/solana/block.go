package solana

import (
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// convertBlock flattens a getBlock result. Transactions that fail to decode are
// counted and left out.
func convertBlock(slot uint64, res *rpc.GetBlockResult) (*Block, int) {
	block := &Block{
		Slot:         slot,
		ParentSlot:   res.ParentSlot,
		Blockhash:    res.Blockhash.String(),
		Transactions: make([]Transaction, 0, len(res.Transactions)),
	}
	if res.BlockTime != nil {
		block.BlockTime = int64(*res.BlockTime)
	}

	for i := range res.Transactions {
		tx, ok := convertTransaction(&res.Transactions[i])
		if !ok {
			block.DroppedTransactions++
			continue
		}
		block.Transactions = append(block.Transactions, tx)
	}
	return block, block.DroppedTransactions
}

func convertTransaction(twm *rpc.TransactionWithMeta) (Transaction, bool) {
	if twm.Transaction == nil {
		return Transaction{}, false
	}
	decoded, err := twm.GetTransaction()
	if err != nil || decoded == nil || len(decoded.Signatures) == 0 {
		return Transaction{}, false
	}

	keys := make(solanago.PublicKeySlice, 0, len(decoded.Message.AccountKeys))
	keys = append(keys, decoded.Message.AccountKeys...)

	tx := Transaction{
		Signature:    decoded.Signatures[0].String(),
		Instructions: decoded.Message.Instructions,
	}
	if meta := twm.Meta; meta != nil {
		tx.Failed = meta.Err != nil
		tx.InnerInstructions = meta.InnerInstructions
		tx.LogMessages = meta.LogMessages
		// Loaded addresses follow static keys in index space: writable first, then readonly.
		keys = append(keys, meta.LoadedAddresses.Writable...)
		keys = append(keys, meta.LoadedAddresses.ReadOnly...)
	}
	tx.AccountKeys = keys
	return tx, true
}
