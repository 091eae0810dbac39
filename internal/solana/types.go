package solana

import (
	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Block is a fetched block with its transactions in ledger order.
type Block struct {
	Slot         uint64
	ParentSlot   uint64
	Blockhash    string
	BlockTime    int64 // unix seconds, 0 when unknown
	Transactions []Transaction

	// DroppedTransactions counts transactions whose wire bytes could not be decoded.
	DroppedTransactions int
}

// Transaction is a confirmed transaction with the metadata the decoders need.
type Transaction struct {
	Signature string
	Failed    bool

	// AccountKeys holds static keys, then loaded writable, then loaded readonly addresses.
	AccountKeys       solanago.PublicKeySlice
	Instructions      []solanago.CompiledInstruction
	InnerInstructions []rpc.InnerInstruction
	LogMessages       []string
}

// Account returns the account key at index.
func (tx *Transaction) Account(index uint16) (solanago.PublicKey, bool) {
	if int(index) >= len(tx.AccountKeys) {
		return solanago.PublicKey{}, false
	}
	return tx.AccountKeys[index], true
}

// ProgramID resolves the program executing ix.
func (tx *Transaction) ProgramID(ix solanago.CompiledInstruction) (solanago.PublicKey, bool) {
	return tx.Account(ix.ProgramIDIndex)
}

// HasAccount reports whether key is referenced by the transaction.
func (tx *Transaction) HasAccount(key solanago.PublicKey) bool {
	for _, k := range tx.AccountKeys {
		if k.Equals(key) {
			return true
		}
	}
	return false
}

// FeePayer returns the first signer, which is the trading wallet for user transactions.
func (tx *Transaction) FeePayer() solanago.PublicKey {
	if len(tx.AccountKeys) == 0 {
		return solanago.PublicKey{}
	}
	return tx.AccountKeys[0]
}

// InnerInstructionsFor returns the inner instructions emitted under top-level instruction index.
func (tx *Transaction) InnerInstructionsFor(index int) []solanago.CompiledInstruction {
	for _, set := range tx.InnerInstructions {
		if int(set.Index) == index {
			return toCompiled(set.Instructions)
		}
	}
	return nil
}

func toCompiled(in []rpc.CompiledInstruction) []solanago.CompiledInstruction {
	out := make([]solanago.CompiledInstruction, len(in))
	for i, ix := range in {
		out[i] = solanago.CompiledInstruction{
			ProgramIDIndex: ix.ProgramIDIndex,
			Accounts:       ix.Accounts,
			Data:           ix.Data,
		}
	}
	return out
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64
	Owner      string
	Data       []byte
	Executable bool
}
