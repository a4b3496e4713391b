// Package assets は保護対象ファイル（履歴書PDF）の読み込みと配信を行います。
package assets

import (
	"errors"
	"fmt"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const pdfContentType = "application/pdf"

var (
	// ErrNotFound はファイルが存在しない場合のエラーです。
	ErrNotFound = errors.New("protected asset not found")
	// ErrInvalidPDF はファイルがPDFとして不正な場合のエラーです。
	ErrInvalidPDF = errors.New("protected asset is not a valid pdf")
)

func init() {
	// ホームディレクトリに設定ファイルを作らせない
	pdfapi.DisableConfigDir()
}

// Asset は起動時に検証済みの保護ファイルです。
type Asset struct {
	Path        string
	Name        string
	ContentType string
	Pages       int
	Size        int64
	ModTime     time.Time
}

// Load はファイルを検証して Asset を返します。
// PDFの構造検証とページ数の取得には pdfcpu、種別判定には mimetype を使います。
func Load(path string) (*Asset, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to detect content type: %w", err)
	}
	if !mtype.Is(pdfContentType) {
		return nil, fmt.Errorf("%w: detected %s", ErrInvalidPDF, mtype.String())
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := pdfapi.ValidateFile(path, conf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	pages, err := pdfapi.PageCountFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	return &Asset{
		Path:        path,
		Name:        filepath.Base(path),
		ContentType: pdfContentType,
		Pages:       pages,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
	}, nil
}

// Handler は保護ファイルを配信するハンドラーを返します。
// アクセス可否はゲートが判定済みである前提です。asset が nil の場合は常に 404 を返します。
func Handler(asset *Asset, logger *log.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = log.Default()
	}

	return func(c *gin.Context) {
		if asset == nil {
			respondNotFound(c)
			return
		}

		f, err := os.Open(asset.Path)
		if err != nil {
			logger.Printf("failed to open protected asset %s: %v", asset.Path, err)
			respondNotFound(c)
			return
		}
		defer f.Close()

		c.Header("Content-Type", asset.ContentType)
		c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": asset.Name}))
		http.ServeContent(c.Writer, c.Request, asset.Name, asset.ModTime, f)
	}
}

func respondNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"message": "Not found",
	})
}
