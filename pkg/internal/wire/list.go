package wire

// 列表编码：
//
//	count: N
//	item-length: M1
//	<M1 行>
//	item-length: M2
//	<M2 行>
//
// 每个元素先声明自己的行数，解码时无需试探元素边界.

// EncodeList 编码任意 Value 列表.
func EncodeList[T Value](items []T) string {
	e := NewEncoder().Int("count", int64(len(items)))
	for _, item := range items {
		e.Block("item", item.Encode())
	}

	return e.Encode()
}

// DecodeList 解码由 EncodeList 生成的文本.
func DecodeList[T any, PT Decodable[T]](text string) ([]T, error) {
	d := NewDecoder(text)

	line := d.peek()

	n, err := d.Int("count")
	if err != nil {
		return nil, err
	}

	if n < 0 {
		return nil, &FormatError{Expected: "count", Got: line}
	}

	items := make([]T, 0, min(n, int64(len(d.lines))))

	for range n {
		block, err := d.Block("item")
		if err != nil {
			return nil, err
		}

		item, err := Decode[T, PT](block)
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	if err := d.End(); err != nil {
		return nil, err
	}

	return items, nil
}
