package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageOffset(t *testing.T) {
	tests := []struct {
		name   string
		page   Page
		offset int
		beyond bool
	}{
		{"first page", Page{Number: 1, Size: 20}, 0, false},
		{"third page", Page{Number: 3, Size: 10}, 20, false},
		{"largest addressable page", Page{Number: math.MaxInt/2 + 1, Size: 2}, math.MaxInt - 1, false},
		{"overflowing page saturates", Page{Number: math.MaxInt, Size: 2}, math.MaxInt, true},
		{"single-record page at the limit", Page{Number: math.MaxInt, Size: 1}, math.MaxInt - 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.offset, tt.page.Offset())
			assert.Equal(t, tt.beyond, tt.page.BeyondRange())
		})
	}
}
