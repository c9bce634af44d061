package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateLength(t *testing.T) {
	for _, length := range []int{4, 6, 8} {
		gen := NewCodeGenerator(length)
		for i := 0; i < 20; i++ {
			code, err := gen.Generate()
			require.NoError(t, err)
			assert.Len(t, code, length)
			assert.NoError(t, gen.Validate(code))
		}
	}
}

func TestGenerateClampsLength(t *testing.T) {
	code, err := NewCodeGenerator(2).Generate()
	require.NoError(t, err)
	assert.Len(t, code, 4)

	code, err = NewCodeGenerator(12).Generate()
	require.NoError(t, err)
	assert.Len(t, code, 8)
}

func TestValidate(t *testing.T) {
	gen := NewCodeGenerator(6)

	assert.NoError(t, gen.Validate("1234"))
	assert.NoError(t, gen.Validate("00000000"))

	assert.Error(t, gen.Validate("123"))
	assert.Error(t, gen.Validate("123456789"))
	assert.Error(t, gen.Validate("12a4"))
	assert.Error(t, gen.Validate(""))
}
