package requestctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaller_RoundTrip(t *testing.T) {
	ctx := SetCaller(context.Background(), "caller-a")
	assert.Equal(t, "caller-a", Caller(ctx))
}

func TestCaller_Unset(t *testing.T) {
	assert.Empty(t, Caller(context.Background()))
}
