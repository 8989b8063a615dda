package chain

import (
	"context"
	"errors"

	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/zk"
)

var (
	// ErrTxNotFound occurs when confirmations are requested for an unknown
	// transaction hash.
	ErrTxNotFound = errors.New("transaction not found")

	// ErrUtxoSpent occurs when a spend references an output that no longer
	// exists on the ledger, typically because a stale snapshot was used.
	ErrUtxoSpent = errors.New("utxo not found or already spent")
)

// Utxo is one unspent output locked at a script address. DatumCommitment is
// the identity commitment carried in the output datum.
type Utxo struct {
	TxHash          string
	OutputIndex     uint32
	DatumCommitment zk.Commitment
	Amount          int64
}

// Provider is the connector to the ledger backend. Implementations own
// transaction construction, signing and submission; callers only express
// intent. Confirmation tracking is the provider's policy, exposed as a count.
type Provider interface {
	PlaceFunds(ctx context.Context, scriptAddress string, commitment zk.Commitment, amount int64) (string, error)
	ListUtxosAt(ctx context.Context, scriptAddress string) ([]Utxo, error)
	SpendUtxo(ctx context.Context, utxo Utxo, redeemer []byte, toAddress string) (string, error)
	GetConfirmations(ctx context.Context, txHash string) (int, error)
}
