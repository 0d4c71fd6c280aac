// Package model defines the boundary to the external hairstyle transfer
// model. The orchestrator only ever talks to a Capability through a Handle.
package model

import (
	"context"
	"strings"

	"github.com/dmorgan81/hairswap/internal/asset"
)

type Style string

const (
	StyleRealistic Style = "realistic"
	StyleFidelity  Style = "fidelity"
)

var Styles = []Style{StyleRealistic, StyleFidelity}

func (s Style) Valid() bool {
	return s == StyleRealistic || s == StyleFidelity
}

// ParseStyle accepts any casing. Unknown names are returned as-is so that
// validation can report them.
func ParseStyle(s string) Style {
	return Style(strings.ToLower(strings.TrimSpace(s)))
}

const (
	MinSmoothness = 1
	MaxSmoothness = 5
)

type Params struct {
	Style      Style
	Smoothness int
}

type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Resolution  int    `json:"resolution,omitempty"`
}

type Capability interface {
	// Setup prepares the model. It may be slow and is called at most once at a
	// time by Handle.
	Setup(ctx context.Context) error
	// Transfer must honour ctx: when it is cancelled the call should release
	// what it holds and return promptly.
	Transfer(ctx context.Context, face, reference *asset.Asset, p Params) (*asset.Asset, error)
	Info() Info
}
