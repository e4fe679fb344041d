package ble

import (
	"testing"

	"lantern/internal/transport"

	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name    string
		d       transport.Descriptor
		address string
		local   string
		want    bool
	}{
		{"address match ignores case", transport.Descriptor{Address: "be:ff:00:11:22:33"}, "BE:FF:00:11:22:33", "", true},
		{"address wins over name", transport.Descriptor{Address: "AA:AA:AA:AA:AA:AA", Name: "ELK-BLEDOM"}, "BB:BB:BB:BB:BB:BB", "ELK-BLEDOM", false},
		{"name match", transport.Descriptor{Name: "elk-bledom"}, "BB:BB:BB:BB:BB:BB", "ELK-BLEDOM", true},
		{"name substring", transport.Descriptor{Name: "bledom"}, "BB:BB:BB:BB:BB:BB", "ELK-BLEDOM-01", true},
		{"whitespace around name ignored", transport.Descriptor{Name: " ELK "}, "BB:BB:BB:BB:BB:BB", "ELK-BLEDOM", true},
		{"blank name never matches", transport.Descriptor{Name: "  "}, "BB:BB:BB:BB:BB:BB", "ELK-BLEDOM", false},
		{"name mismatch", transport.Descriptor{Name: "ELK-BLEDOM"}, "BB:BB:BB:BB:BB:BB", "Other", false},
		{"empty descriptor never matches", transport.Descriptor{}, "BB:BB:BB:BB:BB:BB", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matches(tt.d, tt.address, tt.local))
		})
	}
}
