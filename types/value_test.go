package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindPromotion(t *testing.T) {
	t.Parallel()
	assert.Equal(t, KindTextList, KindText.ListOf())
	assert.Equal(t, KindIntList, KindInteger.ListOf())
	assert.Equal(t, KindNumberList, KindNumber.ListOf())
	assert.Equal(t, KindMessageList, KindMessage.ListOf())
	// Json lists stay Json; the runtime value becomes an array.
	assert.Equal(t, KindJson, KindJson.ListOf())
	assert.Equal(t, KindChat, KindChat.ListOf())
}

func TestKindElementOf(t *testing.T) {
	t.Parallel()
	assert.Equal(t, KindText, KindTextList.ElementOf())
	assert.Equal(t, KindInteger, KindIntList.ElementOf())
	assert.Equal(t, KindNumber, KindNumberList.ElementOf())
	assert.Equal(t, KindMessage, KindMessageList.ElementOf())
}

func TestKindNameRoundTrip(t *testing.T) {
	t.Parallel()
	for _, k := range []Kind{
		KindPlaceholder, KindFailure, KindText, KindInteger, KindNumber,
		KindJson, KindModel, KindAgent, KindTools, KindChat, KindMessage,
		KindTextList, KindIntList, KindNumberList, KindMessageList,
	} {
		back, ok := KindByName(k.String())
		require.True(t, ok, k.String())
		assert.Equal(t, k, back)
	}
}

func TestValueAccessors(t *testing.T) {
	t.Parallel()

	text, ok := Text("hello").AsText()
	require.True(t, ok)
	assert.Equal(t, "hello", text)

	i, ok := Integer(42).AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(42), i)

	// Integers convert through AsNumber.
	f, ok := Integer(42).AsNumber()
	require.True(t, ok)
	assert.Equal(t, 42.0, f)

	_, ok = Text("no").AsInt()
	assert.False(t, ok)

	assert.True(t, Empty().IsEmpty())
	assert.False(t, Text("").IsEmpty())
}

func TestValueListLen(t *testing.T) {
	t.Parallel()

	n, ok := TextList([]string{"a", "b", "c"}).ListLen()
	require.True(t, ok)
	assert.Equal(t, 3, n)

	n, ok = Json([]any{1.0, 2.0}).ListLen()
	require.True(t, ok)
	assert.Equal(t, 2, n)

	_, ok = Json(map[string]any{"a": 1.0}).ListLen()
	assert.False(t, ok)

	_, ok = Text("scalar").ListLen()
	assert.False(t, ok)
}

func TestValueElementAt(t *testing.T) {
	t.Parallel()

	v := TextList([]string{"a", "b"}).ElementAt(1)
	text, ok := v.AsText()
	require.True(t, ok)
	assert.Equal(t, "b", text)

	// Scalars broadcast: ElementAt returns the value itself.
	scalar := Integer(7).ElementAt(3)
	i, ok := scalar.AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(7), i)

	el := Json([]any{"x", "y"}).ElementAt(0)
	raw, ok := el.AsJson()
	require.True(t, ok)
	assert.Equal(t, "x", raw)
}

func TestValueListCopies(t *testing.T) {
	t.Parallel()

	src := []string{"a", "b"}
	v := TextList(src)
	src[0] = "mutated"

	items, _ := v.AsTextSlice()
	assert.Equal(t, "a", items[0], "constructor must copy its input")
}

func TestPushScalarAndFlatten(t *testing.T) {
	t.Parallel()

	acc := EmptyListOf(KindIntList)
	acc = Push(acc, Integer(1))
	acc = Push(acc, Integer(2))
	acc = Push(acc, IntList([]int64{3, 4}))

	items, ok := acc.AsIntSlice()
	require.True(t, ok)
	assert.Equal(t, []int64{1, 2, 3, 4}, items)
}

func TestPushDropsPlaceholder(t *testing.T) {
	t.Parallel()

	acc := EmptyListOf(KindTextList)
	acc = Push(acc, Text("keep"))
	acc = Push(acc, Empty())

	items, ok := acc.AsTextSlice()
	require.True(t, ok)
	assert.Equal(t, []string{"keep"}, items)
}

func TestPushJsonConcat(t *testing.T) {
	t.Parallel()

	acc := EmptyListOf(KindJson)
	acc = Push(acc, Json([]any{"a"}))
	acc = Push(acc, Json("b"))

	raw, ok := acc.AsJson()
	require.True(t, ok)
	assert.Equal(t, []any{"a", "b"}, raw)
}

func TestValueMarshalJSON(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(map[string]Value{
		"text": Text("hi"),
		"int":  Integer(3),
		"list": TextList([]string{"x"}),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"hi","int":3,"list":["x"]}`, string(b))
}
