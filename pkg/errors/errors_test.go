package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeMoleculeUnparseable, "notation did not parse")
	require.NotNil(t, err)
	assert.Equal(t, ErrCodeMoleculeUnparseable, err.Code)
	assert.Equal(t, "notation did not parse", err.Message)
	assert.NotEmpty(t, err.Stack)
	assert.Contains(t, err.Error(), "MOLPREP_001")
}

func TestError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "without_detail",
			err:  &AppError{Code: ErrCodeNotFound, Message: "molecule not found"},
			want: "[COMMON_003] molecule not found",
		},
		{
			name: "with_detail",
			err:  &AppError{Code: ErrCodeValidation, Message: "bad notation", Detail: "name=aspirin"},
			want: "[COMMON_006] bad notation: name=aspirin",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestWrap(t *testing.T) {
	base := stderrors.New("connection refused")
	err := Wrap(base, ErrCodeDatabaseError, "failed to save molecule")
	require.NotNil(t, err)
	assert.Equal(t, ErrCodeDatabaseError, err.Code)
	assert.True(t, stderrors.Is(err, base))

	assert.Nil(t, Wrap(nil, ErrCodeDatabaseError, "ignored"))
}

func TestWrap_PreservesCodeForUnknown(t *testing.T) {
	inner := New(ErrCodeEmbeddingFailed, "no coordinates")
	outer := Wrap(inner, CodeUnknown, "conformer construction failed")
	assert.Equal(t, ErrCodeEmbeddingFailed, outer.Code)
}

func TestWithDetail(t *testing.T) {
	err := InvalidParam("notation must not be empty")
	detailed := err.WithDetail("input=''")
	assert.Equal(t, "input=''", detailed.Detail)
	// Original untouched.
	assert.Empty(t, err.Detail)

	var nilErr *AppError
	assert.Nil(t, nilErr.WithDetail("noop"))
}

func TestIsCode(t *testing.T) {
	inner := New(ErrCodeCanonicalizationFailed, "cannot canonicalize")
	wrapped := fmt.Errorf("stage failed: %w", inner)

	assert.True(t, IsCode(wrapped, ErrCodeCanonicalizationFailed))
	assert.False(t, IsCode(wrapped, ErrCodeEmbeddingFailed))
	assert.False(t, IsCode(nil, ErrCodeEmbeddingFailed))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(NotFound("molecule not found")))
	assert.False(t, IsNotFound(Internal("boom")))
	assert.False(t, IsNotFound(nil))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, CodeOK, GetCode(nil))
	assert.Equal(t, CodeUnknown, GetCode(stderrors.New("plain")))
	assert.Equal(t, ErrCodeContract, GetCode(Contract("called out of order")))
}
