package imgerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"bare sentinel", ErrFileTooLarge, KindFileTooLarge},
		{"wrapped once", fmt.Errorf("validate: %w", ErrInvalidFileName), KindInvalidFileName},
		{"wrapped twice", fmt.Errorf("process: %w", fmt.Errorf("encode: %w", ErrBlobConversionFailed)), KindBlobConversionFailed},
		{"joined with cause", fmt.Errorf("%w: %w", ErrImageLoadFailed, errors.New("unexpected EOF")), KindImageLoadFailed},
		{"foreign error", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestMessage(t *testing.T) {
	assert.Empty(t, Message(nil))
	assert.Equal(t, ErrProcessTimeout.Error(), Message(fmt.Errorf("process: %w", ErrProcessTimeout)))
	assert.Equal(t, ErrInternal.Error(), Message(errors.New("disk on fire")))
}

func TestEverySentinelHasDistinctKind(t *testing.T) {
	seen := make(map[Kind]bool, len(sentinels))
	for _, s := range sentinels {
		assert.False(t, seen[s.kind], "duplicate kind %s", s.kind)
		seen[s.kind] = true
		assert.Equal(t, s.kind, KindOf(s.err))
	}
}
