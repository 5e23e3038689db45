package result

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOkAndFail(t *testing.T) {
	ok := Ok(42)
	v, err := ok.Value()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.True(t, ok.IsOk())

	bad := Fail[int]("boom")
	_, err = bad.Value()
	require.EqualError(t, err, "boom")
	assert.False(t, bad.IsOk())
}

func TestFromError(t *testing.T) {
	assert.True(t, FromError[string](nil).IsOk())
	r := FromError[string](errors.New("network down"))
	assert.Equal(t, "network down", r.Error)
}

func TestEnvelopeShape(t *testing.T) {
	b, err := json.Marshal(Ok(map[string]string{"id": "a1"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"data":{"id":"a1"}}`, string(b))

	b, err = json.Marshal(Fail[map[string]string]("not found"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"error":"not found"}`, string(b))
}

func TestDecode(t *testing.T) {
	r := Decode[[]int]([]byte(`{"success":true,"data":[1,2]}`))
	require.True(t, r.IsOk())
	assert.Equal(t, []int{1, 2}, r.Data)

	r = Decode[[]int]([]byte(`{"success":false,"message":"Validation failed"}`))
	assert.EqualError(t, r.Err(), "Validation failed")

	r = Decode[[]int]([]byte(`<html>`))
	assert.False(t, r.IsOk())
	assert.Contains(t, r.Error, "invalid response")

	r = Decode[[]int]([]byte(`{"success":false}`))
	assert.EqualError(t, r.Err(), ErrEmptyFailure.Error())
}
