package mempool

import "time"

// Transaction is a submitted, possibly-unconfirmed transaction. Fields
// mirror original_source/artha-blockchain/src/types/transaction.rs,
// trimmed to what the core needs to prioritize, validate, and embed in a
// block (execution semantics are out of scope per spec.md §1 Non-goals).
type Transaction struct {
	ID        string
	Sender    string
	Recipient string
	Amount    uint64
	Timestamp time.Time
	Nonce     uint64
	Signature []byte
	Data      []byte
	GasLimit  uint64
	GasPrice  uint64
	ChainID   uint64
}

// Fee is the priority signal the mempool orders by, matching
// transaction_pool.rs's sole priority field.
func (tx *Transaction) Fee() uint64 {
	return tx.GasLimit * tx.GasPrice
}

// SignBytes is the payload a transaction's Signature is computed over.
func (tx *Transaction) SignBytes() []byte {
	buf := make([]byte, 0, len(tx.ID)+len(tx.Sender)+len(tx.Recipient)+len(tx.Data)+64)
	buf = append(buf, tx.ID...)
	buf = append(buf, ':')
	buf = append(buf, tx.Sender...)
	buf = append(buf, ':')
	buf = append(buf, tx.Recipient...)
	buf = append(buf, ':')
	buf = appendUint64(buf, tx.Amount)
	buf = append(buf, ':')
	buf = appendUint64(buf, tx.Nonce)
	buf = append(buf, ':')
	buf = append(buf, tx.Data...)
	return buf
}

func appendUint64(buf []byte, v uint64) []byte {
	if v == 0 {
		return append(buf, '0')
	}
	var tmp [20]byte
	i := len(tmp)
	for v > 0 {
		i--
		tmp[i] = byte('0' + v%10)
		v /= 10
	}
	return append(buf, tmp[i:]...)
}
