package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/user/sitemirror/internal/assets"
	"github.com/user/sitemirror/internal/transform"
)

// Patcher re-applies the document rules to an existing output tree.
type Patcher interface {
	Patch(ctx context.Context, root string) (*PatchResult, error)
}

type PatchResult struct {
	Files          int
	Changed        int
	HelpersWritten []string
}

type patchUseCase struct {
	transformer     DocumentTransformer
	baseURL         string
	successDocument string
	logger          *zap.Logger
}

// NewPatchUseCase creates a Patcher. baseURL resolves root-relative asset
// references and may be empty.
func NewPatchUseCase(transformer DocumentTransformer, baseURL, successDocument string, logger *zap.Logger) Patcher {
	return &patchUseCase{
		transformer:     transformer,
		baseURL:         baseURL,
		successDocument: successDocument,
		logger:          logger,
	}
}

// Patch walks every .html file outside assets/ and rewrites only the files
// whose rules reported a change.
func (uc *patchUseCase) Patch(ctx context.Context, root string) (*PatchResult, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("output dir %s: %w", root, err)
	}
	written, err := transform.WriteStaticHelpers(root)
	if err != nil {
		return nil, err
	}
	res := &PatchResult{HelpersWritten: written}

	if uc.successDocument != "" {
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(uc.successDocument))); errors.Is(err, fs.ErrNotExist) {
			uc.logger.Warn("Success document not found, skipping acknowledgment", zap.String("doc", uc.successDocument))
		}
	}

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && assets.IsAssetsPath(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".html") {
			return nil
		}
		res.Files++
		changed, err := uc.patchFile(ctx, p, rel)
		if err != nil {
			return err
		}
		if changed {
			res.Changed++
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("patch %s: %w", root, err)
	}

	uc.logger.Info("Patch finished",
		zap.Int("files", res.Files),
		zap.Int("changed", res.Changed),
		zap.Strings("helpers_written", res.HelpersWritten),
	)
	return res, nil
}

func (uc *patchUseCase) patchFile(ctx context.Context, full, rel string) (bool, error) {
	info, err := os.Stat(full)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", rel, err)
	}

	out, changed, err := uc.transformer.Transform(ctx, string(data), transform.DocContext{
		DocPath: rel,
		BaseURL: uc.baseURL,
	})
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		uc.logger.Warn("Skipping unparsable document", zap.String("doc", rel), zap.Error(err))
		return false, nil
	}
	if !changed {
		uc.logger.Debug("No changes needed", zap.String("doc", rel))
		return false, nil
	}
	if err := os.WriteFile(full, []byte(out), info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("write %s: %w", rel, err)
	}
	uc.logger.Info("Document patched", zap.String("doc", rel))
	return true, nil
}
