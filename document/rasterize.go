package document

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/defensoria-civil/divorcios/types"
)

// Rasterizer 把非图片文档的首页转成图片
type Rasterizer interface {
	FirstPage(ctx context.Context, data []byte) ([]byte, error)
}

// PdftoppmRasterizer 调用外部 pdftoppm 渲染 PDF 首页为 PNG
type PdftoppmRasterizer struct {
	Path    string
	DPI     int
	Timeout time.Duration
}

// NewPdftoppmRasterizer 创建栅格化器，零值参数取默认
func NewPdftoppmRasterizer(path string, dpi int, timeout time.Duration) *PdftoppmRasterizer {
	if path == "" {
		path = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 150
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PdftoppmRasterizer{Path: path, DPI: dpi, Timeout: timeout}
}

// FirstPage implements Rasterizer.
func (r *PdftoppmRasterizer) FirstPage(ctx context.Context, data []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "divorcios-raster-")
	if err != nil {
		return nil, conversionFailed(err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, conversionFailed(err)
	}
	outPrefix := filepath.Join(dir, "page")

	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.Path,
		"-png", "-singlefile",
		"-f", "1", "-l", "1",
		"-r", strconv.Itoa(r.DPI),
		in, outPrefix)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, conversionFailed(fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String())))
	}

	img, err := os.ReadFile(outPrefix + ".png")
	if err != nil {
		return nil, conversionFailed(err)
	}
	return img, nil
}

func conversionFailed(err error) error {
	return types.NewError(types.ErrDocumentConversionFails, "rasterize first page").WithCause(err)
}

// DetectMIME 优先采用声明的类型，缺失或为通用二进制时按内容嗅探
func DetectMIME(declared string, data []byte) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	sniffed := http.DetectContentType(data)
	if i := strings.IndexByte(sniffed, ';'); i >= 0 {
		sniffed = sniffed[:i]
	}
	return sniffed
}

// IsImage 报告 MIME 是否为视觉模型可直接读取的图片
func IsImage(mime string) bool {
	return strings.HasPrefix(mime, "image/")
}
