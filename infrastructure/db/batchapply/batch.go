package batchapply

import "fmt"

// Operation is a single write of a decided batch, addressed to the
// namespace of the module that produced it.
type Operation struct {
	Namespace string
	Key       []byte
	Value     []byte
	Remove    bool
}

// DecidedBatch is the ordered list of writes the federation agreed on in
// one consensus round. Every node applies it as one write transaction.
type DecidedBatch struct {
	Round      uint64
	Operations []Operation
}

func (b *DecidedBatch) String() string {
	return fmt.Sprintf("batch of round %d (%d operations)", b.Round, len(b.Operations))
}
