package validator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventForm struct {
	Name      string    `validate:"required,max=10"`
	StartTime time.Time `validate:"required,future"`
}

func TestValidate_FutureTag(t *testing.T) {
	ctx := context.Background()

	err := Validate(ctx, eventForm{Name: "concert", StartTime: time.Now().Add(time.Hour)})
	assert.NoError(t, err)

	err = Validate(ctx, eventForm{Name: "concert", StartTime: time.Now().Add(-time.Hour)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Date must be in the future")
}

func TestValidate_RequiredAndMax(t *testing.T) {
	ctx := context.Background()
	start := time.Now().Add(time.Hour)

	err := Validate(ctx, eventForm{StartTime: start})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrFieldRequired)

	err = Validate(ctx, eventForm{Name: "way too long a name", StartTime: start})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrFieldExceedsMaxLen)
}

func TestValidate_GteMapsToMinValue(t *testing.T) {
	type counts struct {
		Adults int `validate:"gte=0"`
	}

	err := Validate(context.Background(), counts{Adults: -1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrFieldBelowMinVal)
}
