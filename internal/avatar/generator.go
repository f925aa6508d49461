// Package avatar はプロフィール保存後のアバターサンプル生成パイプラインを提供する。
//
// 生成処理はGeneratorとして差し替え可能で、失敗は状態として記録し呼び出し元の処理を失敗させない。
package avatar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// SamplesDir はDATA_DIR配下のサンプル画像の保存先ディレクトリ名。
const SamplesDir = "avatar-samples"

// ErrNoTemplate はサンプル生成の元画像が設定されていないことを表す。
var ErrNoTemplate = errors.New("no avatar template image configured")

// Result はアバター生成1回分の結果。
// OKがtrueの場合、PathはDATA_DIRからの相対パス。
type Result struct {
	OK   bool
	Path string
	Err  error
}

// Generator はユーザーのアバターサンプルを生成する。
type Generator interface {
	// Name はavatar_models.providerに記録する生成方式の名前。
	Name() string
	Generate(ctx context.Context, userID string) Result
}

// FileSampleGenerator はテンプレート画像をユーザーごとのディレクトリにコピーしてサンプルとする。
type FileSampleGenerator struct {
	dataDir      string
	templatePath string
}

// NewFileSampleGenerator はFileSampleGeneratorを生成する。
func NewFileSampleGenerator(dataDir, templatePath string) *FileSampleGenerator {
	return &FileSampleGenerator{dataDir: dataDir, templatePath: templatePath}
}

// Name は生成方式の名前を返す。
func (g *FileSampleGenerator) Name() string { return "local-sample-v1" }

// Generate はDATA_DIR/avatar-samples/<userID>/sample-<uuid><ext> にテンプレート画像をコピーする。
func (g *FileSampleGenerator) Generate(ctx context.Context, userID string) Result {
	if g.templatePath == "" {
		return Result{Err: ErrNoTemplate}
	}
	// userIDはパスの一部になるためUUID以外は受け付けない
	if _, err := uuid.Parse(userID); err != nil {
		return Result{Err: fmt.Errorf("invalid user id: %w", err)}
	}
	if err := ctx.Err(); err != nil {
		return Result{Err: err}
	}

	relDir := filepath.Join(SamplesDir, userID)
	if err := os.MkdirAll(filepath.Join(g.dataDir, relDir), 0o755); err != nil {
		return Result{Err: fmt.Errorf("failed to create sample directory: %w", err)}
	}

	relPath := filepath.Join(relDir, "sample-"+uuid.New().String()+extensionOf(g.templatePath))
	if err := copyFile(g.templatePath, filepath.Join(g.dataDir, relPath)); err != nil {
		return Result{Err: err}
	}
	return Result{OK: true, Path: relPath}
}

func extensionOf(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return ".jpg"
	}
	return ext
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open template image: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create sample image: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy sample image: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close sample image: %w", err)
	}
	return nil
}

// ContentType はサンプル画像の拡張子からContent-Typeを返す。
func ContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "image/jpeg"
	}
}
