// Package barbershop drives the Barbershop GAN scripts as subprocesses. Each
// transfer gets its own workspace which is removed when the call returns,
// whether it succeeded, failed or was cancelled.
package barbershop

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dmorgan81/hairswap/internal/asset"
	"github.com/dmorgan81/hairswap/internal/config"
	"github.com/dmorgan81/hairswap/internal/log"
	"github.com/dmorgan81/hairswap/internal/model"
	"github.com/dmorgan81/hairswap/internal/workspace"
	"github.com/samber/do"
	"github.com/samber/lo"
)

var scripts = []string{"align_face.py", "main.py"}

type Model struct {
	cfg     config.Barbershop
	workDir string
	runner  Runner
}

func New(cfg config.Barbershop, workDir string, runner Runner) *Model {
	return &Model{cfg: cfg, workDir: workDir, runner: runner}
}

func NewModel(i *do.Injector) (model.Capability, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return New(cfg.Barbershop, cfg.WorkDir, ExecRunner{}), nil
}

func (m *Model) Info() model.Info {
	return model.Info{
		Name:        "Barbershop",
		Description: "StyleGAN2-based hairstyle transfer (Zhu et al. 2021)",
		Resolution:  1024,
	}
}

// Setup clones the repository when its scripts are missing.
func (m *Model) Setup(ctx context.Context) error {
	log := log.FromContextOrDiscard(ctx).WithGroup("barbershop").With("path", m.cfg.Path)

	if err := os.MkdirAll(lo.Ternary(m.workDir == "", os.TempDir(), m.workDir), 0o755); err != nil {
		return fmt.Errorf("ensure work dir: %w", err)
	}
	if m.installed() {
		log.Info("repository present")
		return nil
	}

	log.Info("cloning repository", "repo", m.cfg.RepoURL)
	if err := os.RemoveAll(m.cfg.Path); err != nil {
		return fmt.Errorf("remove incomplete checkout: %w", err)
	}
	if out, err := m.runner.Run(ctx, "", "git", "clone", "--depth", "1", m.cfg.RepoURL, m.cfg.Path); err != nil {
		return fmt.Errorf("git clone: %w: %s", err, tail(out))
	}
	log.Info("installing ninja")
	if out, err := m.runner.Run(ctx, "", m.cfg.Python, "-m", "pip", "install", "ninja"); err != nil {
		return fmt.Errorf("pip install ninja: %w: %s", err, tail(out))
	}
	if !m.installed() {
		return errors.New("scripts still missing after clone")
	}
	return nil
}

func (m *Model) installed() bool {
	for _, s := range scripts {
		if _, err := os.Stat(filepath.Join(m.cfg.Path, s)); err != nil {
			return false
		}
	}
	return true
}

func (m *Model) Transfer(ctx context.Context, face, reference *asset.Asset, p model.Params) (*asset.Asset, error) {
	ws, err := workspace.New(m.workDir, "barbershop")
	if err != nil {
		return nil, model.NewError(model.ResourceExhausted, "cannot create workspace", err)
	}
	defer ws.Close()

	log := log.FromContextOrDiscard(ctx).WithGroup("barbershop").With("workspace", ws.Root())

	unprocessed, err := ws.Mkdir("unprocessed")
	if err != nil {
		return nil, model.NewError(model.UnknownFailure, "workspace", err)
	}
	aligned, err := ws.Mkdir("input/face")
	if err != nil {
		return nil, model.NewError(model.UnknownFailure, "workspace", err)
	}
	output, err := ws.Mkdir("output")
	if err != nil {
		return nil, model.NewError(model.UnknownFailure, "workspace", err)
	}
	if _, err := ws.WriteAsset(ctx, "unprocessed/face.png", face); err != nil {
		return nil, model.NewError(model.UnknownFailure, "cannot save face image", err)
	}
	if _, err := ws.WriteAsset(ctx, "unprocessed/hair.png", reference); err != nil {
		return nil, model.NewError(model.UnknownFailure, "cannot save reference image", err)
	}

	log.Info("aligning faces", "seed", m.cfg.Seed)
	if err := m.align(ctx, unprocessed, aligned); err != nil {
		return nil, err
	}
	images, err := listImages(aligned, ".png", ".jpg", ".jpeg")
	if err != nil {
		return nil, model.NewError(model.UnknownFailure, "cannot list aligned images", err)
	}
	if len(images) < 2 {
		return nil, model.NewError(model.AlignmentFailure, fmt.Sprintf("face alignment produced %d images, need at least 2", len(images)), nil)
	}
	slices.Sort(images)
	faceAligned, hairAligned := images[0], images[1]

	log.Info("running transfer", "face", faceAligned, "hair", hairAligned, "style", p.Style, "smoothness", p.Smoothness)
	out, err := m.runner.Run(ctx, m.cfg.Path, m.cfg.Python, "main.py",
		"--input_dir", aligned,
		"--output_dir", output,
		"--im_path1", faceAligned,
		"--im_path2", hairAligned,
		"--im_path3", hairAligned,
		"--sign", string(p.Style),
		"--smooth", strconv.Itoa(p.Smoothness),
	)
	if err != nil {
		return nil, classify(ctx, out, err, model.UnknownFailure)
	}

	result, err := latestPNG(filepath.Join(output, "Blend_"+string(p.Style)))
	if err != nil {
		return nil, model.NewError(model.UnknownFailure, "output image not found: "+tail(out), err)
	}
	data, err := os.ReadFile(result)
	if err != nil {
		return nil, model.NewError(model.UnknownFailure, "cannot read output image", err)
	}
	a, err := asset.Decode(filepath.Base(result), data)
	if err != nil {
		return nil, model.NewError(model.UnknownFailure, "cannot decode output image", err)
	}
	log.Info("transfer finished", "output", result)
	return a, nil
}

func (m *Model) align(ctx context.Context, unprocessed, aligned string) error {
	timeout := lo.Ternary(m.cfg.AlignTimeout > 0, m.cfg.AlignTimeout, 60*time.Second)
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := m.runner.Run(actx, m.cfg.Path, m.cfg.Python, "align_face.py",
		"-unprocessed_dir", unprocessed,
		"-output_dir", aligned,
		"-seed", strconv.Itoa(m.cfg.Seed),
	)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && actx.Err() != nil {
		return model.NewError(model.AlignmentFailure, fmt.Sprintf("face alignment timed out after %s", timeout), err)
	}
	return classify(ctx, out, err, model.AlignmentFailure)
}

// classify maps a failed script run to an error kind. fallback is used when
// the output gives no better hint.
func classify(ctx context.Context, out []byte, err error, fallback model.Kind) *model.Error {
	if ctx.Err() != nil {
		return model.NewError(model.ProcessingTimeout, "model process cancelled", ctx.Err())
	}
	text := strings.ToLower(string(out))
	switch {
	case strings.Contains(text, "out of memory"),
		strings.Contains(text, "memoryerror"),
		strings.Contains(err.Error(), "signal: killed"):
		return model.NewError(model.ResourceExhausted, tail(out), err)
	case strings.Contains(text, "no face"),
		strings.Contains(text, "face not detected"),
		strings.Contains(text, "no frontal face"):
		return model.NewError(model.AlignmentFailure, tail(out), err)
	default:
		return model.NewError(fallback, tail(out), err)
	}
}

func listImages(dir string, exts ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	return lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		return e.Name(), !e.IsDir() && lo.Contains(exts, strings.ToLower(filepath.Ext(e.Name())))
	}), nil
}

func latestPNG(dir string) (string, error) {
	names, err := listImages(dir, ".png")
	if err != nil {
		return "", err
	}
	var (
		latest string
		mtime  time.Time
	)
	for _, name := range names {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(mtime) {
			latest, mtime = name, info.ModTime()
		}
	}
	if latest == "" {
		return "", fmt.Errorf("no png in %s", dir)
	}
	return filepath.Join(dir, latest), nil
}

func tail(out []byte) string {
	const n = 500
	s := strings.TrimSpace(string(out))
	if len(s) > n {
		s = "..." + s[len(s)-n:]
	}
	return s
}
