package pagecap

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/porticus-lab/go-pagecap/internal/agent"
)

// Frame discovery walks the document and every open shadow root beneath
// it, so frames hosted by web components are found too.
const childFramesJS = `() => {
	const out = [];
	const walk = (root) => {
		for (const el of root.querySelectorAll('*')) {
			if (el.tagName === 'IFRAME' || el.tagName === 'FRAME') out.push(el);
			if (el.shadowRoot) walk(el.shadowRoot);
		}
	};
	walk(document);
	return out;
}`

const byIDJS = `(id) => {
	const el = document.getElementById(id);
	return el ? [el] : [];
}`

const contentReadyJS = `(id, min) => {
	const ok = (el) => el && el.complete && el.naturalWidth > 0;
	const byId = document.getElementById(id);
	if (byId) return byId instanceof HTMLCanvasElement || ok(byId);
	return Array.from(document.images).some((el) => ok(el) && el.naturalWidth > min && el.naturalHeight > min);
}`

const imageInfoJS = `function() {
	if (this instanceof HTMLCanvasElement) {
		return {w: this.width, h: this.height, complete: true};
	}
	return {w: this.naturalWidth || 0, h: this.naturalHeight || 0, complete: !!this.complete};
}`

const awaitLoadJS = `function() {
	return new Promise((resolve, reject) => {
		if (!(this instanceof HTMLImageElement) || (this.complete && this.naturalWidth > 0)) {
			resolve(true);
			return;
		}
		this.addEventListener('load', () => resolve(true), {once: true});
		this.addEventListener('error', () => reject(new Error('image failed to load')), {once: true});
	});
}`

const pixelsJS = `function() {
	if (this instanceof HTMLCanvasElement) return this.toDataURL('image/png');
	const c = document.createElement('canvas');
	c.width = this.naturalWidth;
	c.height = this.naturalHeight;
	c.getContext('2d').drawImage(this, 0, 0);
	return c.toDataURL('image/png');
}`

// rodFrame adapts a rod page, top-level or iframe, to agent.Frame.
type rodFrame struct {
	p       *rod.Page
	imageID string
	minDim  int
}

func newRodFrame(p *rod.Page, imageID string, minDim int) *rodFrame {
	if minDim <= 0 {
		minDim = agent.DefaultMinDimension
	}
	return &rodFrame{p: p, imageID: imageID, minDim: minDim}
}

func (f *rodFrame) ID() string {
	if f.p.FrameID != "" {
		return string(f.p.FrameID)
	}
	return string(f.p.TargetID)
}

func (f *rodFrame) eval(ctx context.Context, js string, args ...any) (*proto.RuntimeRemoteObject, error) {
	return f.p.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
}

func (f *rodFrame) URL(ctx context.Context) (string, error) {
	res, err := f.eval(ctx, `() => location.href`)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (f *rodFrame) Children(ctx context.Context) ([]agent.Frame, error) {
	els, err := f.p.Context(ctx).ElementsByJS(rod.Eval(childFramesJS))
	if err != nil {
		return nil, fmt.Errorf("frames: %w", err)
	}
	out := make([]agent.Frame, 0, len(els))
	for _, el := range els {
		fp, err := el.Frame()
		if err != nil {
			// Not yet attached or already gone.
			continue
		}
		out = append(out, &rodFrame{p: fp, imageID: f.imageID, minDim: f.minDim})
	}
	return out, nil
}

func (f *rodFrame) ImageByID(ctx context.Context, id string) (agent.Image, error) {
	els, err := f.p.Context(ctx).ElementsByJS(rod.Eval(byIDJS, id))
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, nil
	}
	return &rodImage{el: els[0]}, nil
}

func (f *rodFrame) Images(ctx context.Context) ([]agent.Image, error) {
	els, err := f.p.Context(ctx).Elements("img")
	if err != nil {
		return nil, err
	}
	out := make([]agent.Image, len(els))
	for i, el := range els {
		out[i] = &rodImage{el: el}
	}
	return out, nil
}

// WaitContentReady blocks until the frame shows a loaded page image.
func (f *rodFrame) WaitContentReady(ctx context.Context) error {
	return f.p.Context(ctx).Wait(rod.Eval(contentReadyJS, f.imageID, f.minDim))
}

// rodImage adapts an img or canvas element to agent.Image.
type rodImage struct {
	el *rod.Element
}

func (i *rodImage) eval(ctx context.Context, js string) (*proto.RuntimeRemoteObject, error) {
	return i.el.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		ByValue:      true,
		AwaitPromise: true,
	})
}

func (i *rodImage) Info(ctx context.Context) (agent.ImageInfo, error) {
	res, err := i.eval(ctx, imageInfoJS)
	if err != nil {
		return agent.ImageInfo{}, err
	}
	return agent.ImageInfo{
		NaturalWidth:  res.Value.Get("w").Int(),
		NaturalHeight: res.Value.Get("h").Int(),
		Complete:      res.Value.Get("complete").Bool(),
	}, nil
}

func (i *rodImage) AwaitLoad(ctx context.Context) error {
	_, err := i.eval(ctx, awaitLoadJS)
	return err
}

// Pixels exports the image through a canvas at natural size. Cross-origin
// images taint the canvas; those fall back to an element screenshot,
// which the rasterizer rescales to natural size.
func (i *rodImage) Pixels(ctx context.Context) ([]byte, error) {
	res, err := i.eval(ctx, pixelsJS)
	if err == nil {
		data, derr := decodeDataURL(res.Value.Str())
		if derr == nil {
			return data, nil
		}
		err = derr
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	shot, serr := i.el.Context(ctx).Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if serr != nil {
		return nil, errors.Join(err, serr)
	}
	return shot, nil
}

func decodeDataURL(s string) ([]byte, error) {
	_, payload, ok := strings.Cut(s, ";base64,")
	if !ok || !strings.HasPrefix(s, "data:") {
		return nil, errors.New("not a base64 data URL")
	}
	return base64.StdEncoding.DecodeString(payload)
}
