package agent

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClassifyKeepsExistingClassification(t *testing.T) {
	h := NewErrHandler(zap.NewNop())
	orig := NewError(KindFatal, "audio", "device gone", errors.New("enodev"))

	got := h.Classify(fmt.Errorf("start capture: %w", orig), "agent", KindHardwareTransient)

	require.NotNil(t, got)
	assert.Equal(t, KindFatal, got.Kind)
	assert.Equal(t, "audio", got.Subsystem)
}

func TestClassifyPromotesNetworkErrors(t *testing.T) {
	h := NewErrHandler(zap.NewNop())

	got := h.Classify(errors.New("dial tcp: connection refused"), "protocol", KindHardwareTransient)

	require.NotNil(t, got)
	assert.Equal(t, KindNetworkTransient, got.Kind)
}

func TestClassifyNilIsNil(t *testing.T) {
	h := NewErrHandler(zap.NewNop())
	assert.Nil(t, h.Classify(nil, "agent", KindFatal))
	assert.Nil(t, h.Handle(nil, "agent", KindFatal))
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("bus fault")
	e := NewError(KindHardwareTransient, "led", "spi write", inner)

	assert.ErrorIs(t, e, inner)
	assert.Contains(t, e.Error(), "led")
	assert.Contains(t, e.Error(), "bus fault")
}
