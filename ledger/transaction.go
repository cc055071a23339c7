package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"unicode/utf8"
)

// Transaction is an opaque key/value record. The ledger only requires that it
// can be encoded as JSON and that every string in it is valid UTF-8.
type Transaction map[string]any

// UnmarshalJSON decodes numbers as json.Number, so a decoded transaction
// encodes back to the same bytes it was read from.
func (tx *Transaction) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return err
	}
	*tx = m
	return nil
}

// Clone returns a deep copy that encodes to the same canonical bytes.
func (tx Transaction) Clone() (Transaction, error) {
	if tx == nil {
		return nil, nil
	}
	raw, err := encodeTransaction(tx)
	if err != nil {
		return nil, err
	}
	var out Transaction
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	return out, nil
}

func cloneTransactions(txs []Transaction) ([]Transaction, error) {
	out := make([]Transaction, len(txs))
	for i, tx := range txs {
		c, err := tx.Clone()
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}

// canonicalTransactions is the byte form hashed into a block. encoding/json
// sorts object keys, which makes the output independent of map iteration.
func canonicalTransactions(txs []Transaction) ([]byte, error) {
	if len(txs) == 0 {
		return []byte("[]"), nil
	}
	return encodeTransaction(txs)
}

// encodeTransaction marshals v and rejects invalid UTF-8, which encoding/json
// would otherwise replace with U+FFFD and so map distinct payloads to the
// same bytes.
func encodeTransaction(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	if err := checkUTF8(reflect.ValueOf(v)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	return raw, nil
}

// checkUTF8 walks the values encoding/json would emit. It runs only after a
// successful Marshal, so cyclic values have already been rejected.
func checkUTF8(v reflect.Value) error {
	switch v.Kind() {
	case reflect.String:
		if !utf8.ValidString(v.String()) {
			return fmt.Errorf("invalid UTF-8 in %q", v.String())
		}
	case reflect.Interface, reflect.Pointer:
		if !v.IsNil() {
			return checkUTF8(v.Elem())
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if err := checkUTF8(iter.Key()); err != nil {
				return err
			}
			if err := checkUTF8(iter.Value()); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return nil // encoded as base64
		}
		for i := 0; i < v.Len(); i++ {
			if err := checkUTF8(v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).IsExported() {
				if err := checkUTF8(v.Field(i)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
