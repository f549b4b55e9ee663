package source

import (
	"errors"
	"image"
	"strings"

	"github.com/gen2brain/go-fitz"
)

var ErrNoPages = errors.New("источник не содержит страниц/изображений")

// Source: готовый визуальный ряд (PDF или папка картинок), который можно
// подставить вместо диффузионной модели.
type Source interface {
	PageCount() int
	RenderPage(index int, dpi int) (image.Image, error)
	Close() error
}

// Open выбирает реализацию по расширению.
func Open(path string) (Source, error) {
	var (
		src Source
		err error
	)
	if strings.HasSuffix(strings.ToLower(path), ".pdf") {
		src, err = NewFitzPDFSource(path)
	} else {
		src, err = NewImageSource(path)
	}
	if err != nil {
		return nil, err
	}
	if src.PageCount() == 0 {
		src.Close()
		return nil, ErrNoPages
	}
	return src, nil
}

type FitzPDFSource struct {
	doc  *fitz.Document
	path string
}

func NewFitzPDFSource(path string) (*FitzPDFSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return &FitzPDFSource{doc: doc, path: path}, nil
}

func (f *FitzPDFSource) PageCount() int {
	return f.doc.NumPage()
}

func (f *FitzPDFSource) RenderPage(index int, dpi int) (image.Image, error) {
	// Документ fitz не потокобезопасен, рендерим через отдельный экземпляр
	doc, err := fitz.New(f.path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	return doc.ImageDPI(index%f.doc.NumPage(), float64(dpi))
}

func (f *FitzPDFSource) Close() error {
	return f.doc.Close()
}
