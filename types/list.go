package types

// ListLen returns the element count for list-kinded values. A Json value
// counts only when it holds an array.
func (v Value) ListLen() (int, bool) {
	switch v.kind {
	case KindTextList:
		return len(v.texts), true
	case KindIntList:
		return len(v.ints), true
	case KindNumberList:
		return len(v.numbers), true
	case KindMessageList:
		return len(v.msgs), true
	case KindJson:
		if arr, ok := v.jsonVal.([]any); ok {
			return len(arr), true
		}
	}
	return 0, false
}

// ElementAt extracts the i-th element of a list value. Scalar values are
// returned unchanged so callers can broadcast them across iterations.
func (v Value) ElementAt(i int) Value {
	switch v.kind {
	case KindTextList:
		return Text(v.texts[i])
	case KindIntList:
		return Integer(v.ints[i])
	case KindNumberList:
		return Number(v.numbers[i])
	case KindMessageList:
		return Msg(v.msgs[i])
	case KindJson:
		if arr, ok := v.jsonVal.([]any); ok {
			return Json(arr[i])
		}
	}
	return v
}

// EmptyListOf returns a zero-length list value of the given list kind.
// Json yields an empty array document.
func EmptyListOf(k Kind) Value {
	switch k {
	case KindTextList:
		return Value{kind: KindTextList, texts: []string{}}
	case KindIntList:
		return Value{kind: KindIntList, ints: []int64{}}
	case KindNumberList:
		return Value{kind: KindNumberList, numbers: []float64{}}
	case KindMessageList:
		return Value{kind: KindMessageList, msgs: []Message{}}
	case KindJson:
		return Json([]any{})
	default:
		return Empty()
	}
}

// Push appends a value onto a list accumulator and returns the extended
// list. Appending a scalar adds one element; appending a list of the same
// kind concatenates (flattening), which keeps nested lists unrepresentable.
// Json accumulators treat array payloads the same way. Placeholder payloads
// are dropped so an iteration can filter itself out of a flattened output.
func Push(acc Value, item Value) Value {
	if item.IsEmpty() {
		return acc
	}

	switch acc.kind {
	case KindTextList:
		switch item.kind {
		case KindText:
			return Value{kind: KindTextList, texts: append(append([]string(nil), acc.texts...), item.text)}
		case KindTextList:
			return Value{kind: KindTextList, texts: append(append([]string(nil), acc.texts...), item.texts...)}
		}
	case KindIntList:
		switch item.kind {
		case KindInteger:
			return Value{kind: KindIntList, ints: append(append([]int64(nil), acc.ints...), item.integer)}
		case KindIntList:
			return Value{kind: KindIntList, ints: append(append([]int64(nil), acc.ints...), item.ints...)}
		}
	case KindNumberList:
		switch item.kind {
		case KindNumber:
			return Value{kind: KindNumberList, numbers: append(append([]float64(nil), acc.numbers...), item.number)}
		case KindNumberList:
			return Value{kind: KindNumberList, numbers: append(append([]float64(nil), acc.numbers...), item.numbers...)}
		}
	case KindMessageList:
		switch item.kind {
		case KindMessage:
			return Value{kind: KindMessageList, msgs: append(append([]Message(nil), acc.msgs...), item.msg)}
		case KindMessageList:
			return Value{kind: KindMessageList, msgs: append(append([]Message(nil), acc.msgs...), item.msgs...)}
		}
	case KindJson:
		arr, ok := acc.jsonVal.([]any)
		if !ok {
			break
		}
		if item.kind == KindJson {
			if items, ok := item.jsonVal.([]any); ok {
				return Json(append(append([]any(nil), arr...), items...))
			}
			return Json(append(append([]any(nil), arr...), item.jsonVal))
		}
	}

	// Mismatched accumulator: the item wins. Mirrors the permissive
	// collection behavior for dynamically typed inner outputs.
	return item
}
