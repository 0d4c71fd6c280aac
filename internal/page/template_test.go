package page

import (
	"context"
	"strings"
	"testing"

	"github.com/dmorgan81/hairswap/internal/asset"
	"github.com/dmorgan81/hairswap/internal/model"
	"github.com/dmorgan81/hairswap/internal/transfer"
)

func TestTemplate(t *testing.T) {
	var g Templator
	html, err := g.Template(context.Background(), Params{
		ID:         "abc",
		Image:      "abc.png",
		Outcome:    "ok",
		Style:      "realistic",
		Smoothness: 5,
		Log:        []string{"12:00:00.000 [validate] <script>"},
	})
	if err != nil {
		t.Fatal(err)
	}
	page := string(html)
	for _, want := range []string{`src="abc.png"`, "realistic", "&lt;script&gt;", "Processing log"} {
		if !strings.Contains(page, want) {
			t.Errorf("page is missing %q", want)
		}
	}
}

func TestTemplateFailure(t *testing.T) {
	res := transfer.Result{
		ID:  "f1",
		Err: model.NewError(model.ResourceExhausted, "out of memory", nil),
		Stats: transfer.Stats{
			Style:      model.StyleFidelity,
			Smoothness: 2,
			Face:       asset.Dimensions{Width: 512, Height: 512},
		},
	}
	params := ParamsFor(res, "f1.png")
	if params.Image != "" || params.Outcome != "ResourceExhausted" {
		t.Fatalf("unexpected params %+v", params)
	}

	var g Templator
	html, err := g.Template(context.Background(), params)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(html), "<img") || !strings.Contains(string(html), "Transfer failed: ResourceExhausted") {
		t.Errorf("unexpected failure page:\n%s", html)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	p := Params{ID: "x", Outcome: "ok", Style: "fidelity", Smoothness: 3, Enhanced: true, Face: "512x512", Duration: "2s"}
	got := ParamsFromMetadata(p.Metadata(), "x.png")
	p.Image = "x.png"
	if got.ID != p.ID || got.Smoothness != 3 || !got.Enhanced || got.Face != p.Face || got.Image != "x.png" {
		t.Errorf("Expected %+v, got %+v", p, got)
	}
}
