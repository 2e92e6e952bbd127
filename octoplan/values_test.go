package octoplan

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValue_Compare(t *testing.T) {
	tests := []struct {
		a, b Value
		want int
	}{
		{a: NewNull(), b: NewNull(), want: 0},
		{a: NewInt32(3), b: NewInt64(3), want: 0},
		{a: NewInt32(2), b: NewInt64(3), want: -1},
		{a: NewFloat(2.5), b: NewFloat(1), want: 1},
		{a: NewBoolean(false), b: NewBoolean(true), want: -1},
		{a: NewString("abc"), b: NewString("abd"), want: -1},
		{a: NewDuration(time.Second), b: NewDuration(time.Second), want: 0},
		{a: NewNull(), b: NewInt64(1), want: -1},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Compare(tt.b))
		})
	}
}

func TestValue_Equals(t *testing.T) {
	assert.True(t, NewInt64(5).Equals(NewInt64(5)))
	assert.False(t, NewInt32(5).Equals(NewInt64(5)))
	assert.False(t, NewString("a").Equals(NewString("b")))
	assert.True(t, NewNull().Equals(NewNull()))
}

func TestParseType(t *testing.T) {
	typ, err := ParseType("int32")
	assert.NoError(t, err)
	assert.Equal(t, Int32, typ)

	_, err = ParseType("struct")
	assert.Error(t, err)
}
