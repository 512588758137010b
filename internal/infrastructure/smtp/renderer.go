package smtp

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"sync"
	texttemplate "text/template"

	"github.com/go-equity-auth/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// TemplateTwoFactorCode renders CodeEmail.
const TemplateTwoFactorCode = "two_factor_code"

// CodeEmail is the data for TemplateTwoFactorCode.
type CodeEmail struct {
	Name      string
	Code      string
	ExpiresIn string
	Sender    string
}

//go:embed templates/*.html templates/*.txt
var embedded embed.FS

// TemplateSource supplies template overrides by file name. It returns
// domain.ErrNotFound when it has no override.
type TemplateSource interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

type templatePair struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

// Renderer turns a named html/text template pair into a Body. Parsed pairs
// are cached for the life of the process.
type Renderer struct {
	source TemplateSource
	log    *zap.Logger
	sfg    singleflight.Group

	mu    sync.RWMutex
	cache map[string]*templatePair
}

// NewRenderer uses only the embedded templates when source is nil.
func NewRenderer(source TemplateSource, log *zap.Logger) *Renderer {
	return &Renderer{source: source, log: log, cache: make(map[string]*templatePair)}
}

func (r *Renderer) Render(ctx context.Context, name string, data any) (Body, error) {
	pair, err := r.load(ctx, name)
	if err != nil {
		return Body{}, err
	}
	var html, text bytes.Buffer
	if err := pair.html.Execute(&html, data); err != nil {
		return Body{}, fmt.Errorf("render %s.html: %w", name, err)
	}
	if err := pair.text.Execute(&text, data); err != nil {
		return Body{}, fmt.Errorf("render %s.txt: %w", name, err)
	}
	return Body{HTML: html.String(), Text: text.String()}, nil
}

func (r *Renderer) load(ctx context.Context, name string) (*templatePair, error) {
	r.mu.RLock()
	pair, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return pair, nil
	}

	v, err, _ := r.sfg.Do(name, func() (interface{}, error) {
		r.mu.RLock()
		pair, ok := r.cache[name]
		r.mu.RUnlock()
		if ok {
			return pair, nil
		}

		htmlSrc, err := r.read(ctx, name+".html")
		if err != nil {
			return nil, err
		}
		textSrc, err := r.read(ctx, name+".txt")
		if err != nil {
			return nil, err
		}
		h, err := htmltemplate.New(name).Parse(string(htmlSrc))
		if err != nil {
			return nil, fmt.Errorf("parse %s.html: %w", name, err)
		}
		t, err := texttemplate.New(name).Parse(string(textSrc))
		if err != nil {
			return nil, fmt.Errorf("parse %s.txt: %w", name, err)
		}
		pair = &templatePair{html: h, text: t}

		r.mu.Lock()
		r.cache[name] = pair
		r.mu.Unlock()
		return pair, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*templatePair), nil
}

// read prefers the override source and falls back to the embedded copy.
func (r *Renderer) read(ctx context.Context, file string) ([]byte, error) {
	if r.source != nil {
		b, err := r.source.Fetch(ctx, file)
		switch {
		case err == nil:
			return b, nil
		case errors.Is(err, domain.ErrNotFound):
		default:
			r.log.Warn("template override unavailable, using embedded", zap.String("file", file), zap.Error(err))
		}
	}
	b, err := embedded.ReadFile("templates/" + file)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", file, domain.ErrNotFound)
	}
	return b, nil
}
