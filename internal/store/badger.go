package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const (
	seqKey       = "seq:messages"
	seqBandwidth = 128
	maxSeqDigits = "99999999999999999999"
)

// BadgerStore keeps messages in a badger key-value store.
//
// Messages live under "msg:{hex(channel)}:{seq:020d}" so a reverse prefix scan yields
// a channel's history newest first. "id:{id}" points at the message key and makes
// Append idempotent. The channel is hex encoded so names containing ':' cannot
// overlap another channel's prefix.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
}

// OpenBadger opens the badger directory at dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	bdb, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	seq, err := bdb.GetSequence([]byte(seqKey), seqBandwidth)
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("open message sequence: %w", err)
	}
	return &BadgerStore{db: bdb, seq: seq}, nil
}

func channelPrefix(channel string) []byte {
	return []byte(fmt.Sprintf("msg:%x:", channel))
}

func messageKey(channel string, seq uint64) []byte {
	return []byte(fmt.Sprintf("msg:%x:%020d", channel, seq))
}

func (s *BadgerStore) Append(ctx context.Context, msg *Message) (string, error) {
	if err := validate(msg); err != nil {
		return "", err
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			idKey := []byte("id:" + msg.ID)
			item, err := txn.Get(idKey)
			switch {
			case err == nil:
				// Already stored by an earlier attempt.
				key, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				return s.readSeq(txn, key, msg)
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}

			next, err := s.seq.Next()
			if err != nil {
				return err
			}
			// Sequence 0 is never handed out so seq stays positive like sqlite rowids.
			if next == 0 {
				if next, err = s.seq.Next(); err != nil {
					return err
				}
			}
			msg.Seq = int64(next)
			data, err := json.Marshal(msg)
			if err != nil {
				return err
			}
			key := messageKey(msg.Channel, next)
			if err := txn.Set(key, data); err != nil {
				return err
			}
			return txn.Set(idKey, key)
		})
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("append message: %w", err)
		}
		return msg.ID, nil
	}
}

func (s *BadgerStore) readSeq(txn *badger.Txn, key []byte, msg *Message) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(v []byte) error {
		var stored Message
		if err := json.Unmarshal(v, &stored); err != nil {
			return err
		}
		msg.Seq = stored.Seq
		return nil
	})
}

func (s *BadgerStore) ListRecent(ctx context.Context, channel string, limit, offset int) ([]Message, error) {
	limit, offset = clampPage(limit, offset)
	prefix := channelPrefix(channel)

	messages := []Message{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		skipped := 0
		for it.Seek(append(prefix, maxSeqDigits...)); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if skipped < offset {
				skipped++
				continue
			}
			if len(messages) == limit {
				break
			}
			err := it.Item().Value(func(v []byte) error {
				var m Message
				if err := json.Unmarshal(v, &m); err != nil {
					return err
				}
				messages = append(messages, m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

func (s *BadgerStore) Close() error {
	if err := s.seq.Release(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}
