package page

import (
	"bytes"
	"context"
	_ "embed"
	"html/template"
	"strconv"
	"sync"
	"time"

	"github.com/dmorgan81/hairswap/internal/transfer"
	"github.com/go-logr/logr"
	"github.com/samber/do"
	"github.com/samber/lo"
)

//go:embed assets/result.html
var resultTmpl string

type Params struct {
	ID         string
	Image      string
	Outcome    string
	Style      string
	Smoothness int
	Enhanced   bool
	Face       string
	Reference  string
	Output     string
	Duration   string
	Log        []string
}

// ParamsFor describes a finished transfer. image is the relative link to the
// published output and is ignored for failed transfers.
func ParamsFor(res transfer.Result, image string) Params {
	return Params{
		ID:         res.ID,
		Image:      lo.Ternary(res.OK(), image, ""),
		Outcome:    res.Reason(),
		Style:      string(res.Stats.Style),
		Smoothness: res.Stats.Smoothness,
		Enhanced:   res.Stats.Enhanced,
		Face:       res.Stats.Face.String(),
		Reference:  res.Stats.Reference.String(),
		Output:     res.Stats.Output.String(),
		Duration:   res.Stats.Duration.Round(time.Millisecond).String(),
		Log:        res.Log.Lines(),
	}
}

// Metadata is stored next to a published output so that the page can be
// rendered again without the transfer.
func (p Params) Metadata() map[string]string {
	return map[string]string{
		"id":         p.ID,
		"outcome":    p.Outcome,
		"style":      p.Style,
		"smoothness": strconv.Itoa(p.Smoothness),
		"enhanced":   strconv.FormatBool(p.Enhanced),
		"face":       p.Face,
		"reference":  p.Reference,
		"output":     p.Output,
		"duration":   p.Duration,
	}
}

// ParamsFromMetadata is the inverse of Metadata. The log is not kept.
func ParamsFromMetadata(meta map[string]string, image string) Params {
	smoothness, _ := strconv.Atoi(meta["smoothness"])
	enhanced, _ := strconv.ParseBool(meta["enhanced"])
	return Params{
		ID:         meta["id"],
		Image:      image,
		Outcome:    meta["outcome"],
		Style:      meta["style"],
		Smoothness: smoothness,
		Enhanced:   enhanced,
		Face:       meta["face"],
		Reference:  meta["reference"],
		Output:     meta["output"],
		Duration:   meta["duration"],
	}
}

type Templator struct {
	tmpl *template.Template
	once sync.Once
}

func NewTemplator(i *do.Injector) (*Templator, error) {
	return &Templator{}, nil
}

func (g *Templator) Template(ctx context.Context, params Params) ([]byte, error) {
	g.once.Do(func() {
		g.tmpl = template.Must(template.New("result").Parse(resultTmpl))
	})

	log := logr.FromContextOrDiscard(ctx).WithName("templator")
	log.Info("generating page", "id", params.ID)

	var data bytes.Buffer
	if err := g.tmpl.Execute(&data, params); err != nil {
		return nil, err
	}
	return data.Bytes(), nil
}
