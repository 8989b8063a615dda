package chain

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/zk"
)

// SimulatedProvider keeps a ledger of script outputs in memory and mints
// synthetic transaction hashes. It stands in for a wallet SDK in development
// and in tests.
type SimulatedProvider struct {
	mu            sync.Mutex
	sequence      uint64
	utxos         map[string][]Utxo
	confirmations map[string]int
	defaultConfs  int
	nextSubmitErr error
}

// NewSimulatedProvider builds an empty simulated ledger. Transactions it
// mints report defaultConfirmations until overridden with SetConfirmations.
func NewSimulatedProvider(defaultConfirmations int) *SimulatedProvider {
	if defaultConfirmations < 0 {
		defaultConfirmations = 0
	}
	return &SimulatedProvider{
		utxos:         make(map[string][]Utxo),
		confirmations: make(map[string]int),
		defaultConfs:  defaultConfirmations,
	}
}

// PlaceFunds appends a new output carrying the commitment datum at the script
// address and returns its synthetic transaction hash.
func (p *SimulatedProvider) PlaceFunds(_ context.Context, scriptAddress string, commitment zk.Commitment, amount int64) (string, error) {
	if scriptAddress == "" {
		return "", fmt.Errorf("script address is required")
	}
	if amount <= 0 {
		return "", fmt.Errorf("amount must be positive")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeSubmitErr(); err != nil {
		return "", err
	}

	txHash := p.mintTxHash("place", scriptAddress, commitment[:])
	p.utxos[scriptAddress] = append(p.utxos[scriptAddress], Utxo{
		TxHash:          txHash,
		OutputIndex:     0,
		DatumCommitment: commitment,
		Amount:          amount,
	})
	p.confirmations[txHash] = p.defaultConfs
	return txHash, nil
}

// ListUtxosAt returns a snapshot of the outputs currently locked at the
// script address.
func (p *SimulatedProvider) ListUtxosAt(_ context.Context, scriptAddress string) ([]Utxo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	live := p.utxos[scriptAddress]
	out := make([]Utxo, len(live))
	copy(out, live)
	return out, nil
}

// SpendUtxo consumes the referenced output and pays it to toAddress. Spending
// an output that is no longer present fails with ErrUtxoSpent.
func (p *SimulatedProvider) SpendUtxo(_ context.Context, utxo Utxo, redeemer []byte, toAddress string) (string, error) {
	if toAddress == "" {
		return "", fmt.Errorf("destination address is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.takeSubmitErr(); err != nil {
		return "", err
	}

	for address, outputs := range p.utxos {
		for i, candidate := range outputs {
			if candidate.TxHash != utxo.TxHash || candidate.OutputIndex != utxo.OutputIndex {
				continue
			}
			p.utxos[address] = append(outputs[:i], outputs[i+1:]...)
			txHash := p.mintTxHash("spend", toAddress, redeemer)
			p.confirmations[txHash] = p.defaultConfs
			return txHash, nil
		}
	}

	return "", ErrUtxoSpent
}

// GetConfirmations reports the confirmation depth of a minted transaction.
func (p *SimulatedProvider) GetConfirmations(_ context.Context, txHash string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	confs, ok := p.confirmations[txHash]
	if !ok {
		return 0, ErrTxNotFound
	}
	return confs, nil
}

// SetConfirmations overrides the confirmation depth reported for txHash.
func (p *SimulatedProvider) SetConfirmations(txHash string, confirmations int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmations[txHash] = confirmations
}

// FailNextSubmit makes the next PlaceFunds or SpendUtxo call fail with err.
func (p *SimulatedProvider) FailNextSubmit(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextSubmitErr = err
}

func (p *SimulatedProvider) takeSubmitErr() error {
	err := p.nextSubmitErr
	p.nextSubmitErr = nil
	return err
}

func (p *SimulatedProvider) mintTxHash(op, address string, payload []byte) string {
	p.sequence++

	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], p.sequence)

	h, _ := blake2b.New256(nil)
	h.Write([]byte(op))
	h.Write([]byte{0})
	h.Write([]byte(address))
	h.Write([]byte{0})
	h.Write(payload)
	h.Write(seq[:])
	return hex.EncodeToString(h.Sum(nil))
}
