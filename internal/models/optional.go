package models

import "encoding/json"

// Optional はJSONで「キーなし」と「null」を区別するためのフィールド型です。
type Optional[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some は値ありのOptionalを返します。
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

// Null は明示的にnullが指定されたOptionalを返します。
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

// UnmarshalJSON はキーが存在する場合のみ呼ばれるため、ここでSetを立てます。
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		var zero T
		o.Null = true
		o.Value = zero
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

// MarshalJSON は未設定またはnullをnullとして出力します。
func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Set || o.Null {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}
