package tree

import (
	"idxengine/pkg/codec"
	"idxengine/pkg/customerrors"
)

// OpKind distinguishes the three mutation shapes a Transaction can batch.
type OpKind uint8

const (
	OpAdd OpKind = iota
	OpRemove
	OpUpdate
)

// TxOp is one operation within a Transaction (spec §4.3 `transaction(ops)`).
type TxOp struct {
	Kind     OpKind
	Key      codec.Key
	Pointer  codec.RecordPointer
	OldPointer codec.RecordPointer // OpUpdate only
	Metadata []codec.Key
}

// Transaction applies ops as a batch from the caller's viewpoint: spec
// §4.3 says "on first unrecoverable failure, the tree is rebuilt and
// remaining ops are re-applied." "Unrecoverable" here means anything
// other than ErrKeyNotFound on a Remove (a benign no-op for a batch
// derived from a diff, e.g. the Array specialization).
func (t *Tree) Transaction(ops []TxOp) error {
	for i, op := range ops {
		if err := t.applyOp(op); err != nil {
			if err := t.rebuildInPlace(); err != nil {
				return err
			}
			return t.replayFrom(ops[i:])
		}
	}
	return nil
}

func (t *Tree) applyOp(op TxOp) error {
	switch op.Kind {
	case OpAdd:
		return t.Add(op.Key, op.Pointer, op.Metadata)
	case OpRemove:
		err := t.Remove(op.Key, op.Pointer)
		if err == customerrors.ErrKeyNotFound {
			return nil
		}
		return err
	case OpUpdate:
		return t.Update(op.Key, op.Pointer, op.OldPointer, op.Metadata)
	default:
		return nil
	}
}

func (t *Tree) replayFrom(ops []TxOp) error {
	for _, op := range ops {
		if err := t.applyOp(op); err != nil {
			return err
		}
	}
	return nil
}
