package validator

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	ID     uuid.UUID `validate:"uuid_required"`
	Module string    `validate:"required,module_key"`
	Email  string    `validate:"omitempty,email"`
}

func TestValidateStruct(t *testing.T) {
	assert.Empty(t, ValidateStruct(&sample{ID: uuid.New(), Module: "driver"}))

	errs := ValidateStruct(&sample{Module: "Driver!", Email: "nope"})
	require.Len(t, errs, 3)
	assert.Equal(t, "sample.ID", errs[0].FailedField)
	assert.Equal(t, "uuid_required", errs[0].Tag)
	assert.Equal(t, "module_key", errs[1].Tag)
	assert.Equal(t, "email", errs[2].Tag)
}

func TestFirst(t *testing.T) {
	assert.NoError(t, First(&sample{ID: uuid.New(), Module: "notice_board"}))
	err := First(&sample{ID: uuid.New()})
	require.Error(t, err)
	assert.Equal(t, "Field 'sample.Module' failed on tag 'required'", err.Error())
}
