package validator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type sampleStruct struct {
	Name  string `validate:"required"`
	Count int    `validate:"gt=0"`
}

func TestValidate_Passes(t *testing.T) {
	v := New()
	err := v.Validate(sampleStruct{Name: "a", Count: 1})
	require.NoError(t, err)
}

func TestValidate_ReportsFailingFields(t *testing.T) {
	v := New()
	err := v.Validate(sampleStruct{Name: "", Count: 0})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Name")
	require.Contains(t, err.Error(), "Count")
}
