package transfer

import (
	"time"

	"github.com/dmorgan81/hairswap/internal/asset"
	"github.com/dmorgan81/hairswap/internal/model"
)

// Input is one request image: either encoded file bytes still to be decoded,
// or an already decoded Asset.
type Input struct {
	Name  string
	Data  []byte
	Asset *asset.Asset
}

func FileInput(name string, data []byte) Input {
	return Input{Name: name, Data: data}
}

func AssetInput(a *asset.Asset) Input {
	return Input{Asset: a}
}

type Request struct {
	Face       Input
	Reference  Input
	Style      model.Style
	Smoothness int
	Enhance    bool
}

type Stats struct {
	Duration   time.Duration    `json:"duration"`
	Face       asset.Dimensions `json:"face"`
	Reference  asset.Dimensions `json:"reference"`
	Output     asset.Dimensions `json:"output"`
	Style      model.Style      `json:"style"`
	Smoothness int              `json:"smoothness"`
	Enhanced   bool             `json:"enhanced"`
}

// Result is the outcome of one Run. Output is nil exactly when the run
// failed, in which case Err holds the reason.
type Result struct {
	ID     string
	Output *asset.Asset
	Log    Trail
	Stats  Stats
	Err    error
}

func (r Result) OK() bool { return r.Output != nil }

// Reason names the failure kind, or "ok".
func (r Result) Reason() string {
	return reasonOf(r.Err)
}

// ResultKey is where the output of the transfer id is published, without
// extension.
func ResultKey(id string) string {
	return "results/" + id
}
