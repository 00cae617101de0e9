package rod

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"github.com/ysmood/gson"

	"access-assistant/internal/application/port/output"
	"access-assistant/internal/domain/entity"
	"access-assistant/internal/infrastructure/browser/pagetext"
)

var _ output.ActionPort = (*ActionAdapter)(nil)

// ActionAdapter executes plan actions against a live page through a
// rod-controlled browser. A reported failure (element missing, click
// rejected) comes back in the report; an error return means the browser
// itself is unusable.
type ActionAdapter struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page
	timeout  time.Duration
	closed   bool
}

type Config struct {
	Headless   bool
	SlowMotion time.Duration
	Timeout    time.Duration
	NoSandbox  bool
	DevTools   bool
}

func DefaultConfig() Config {
	return Config{
		Headless:   true,
		SlowMotion: 0,
		Timeout:    10 * time.Second,
	}
}

func NewActionAdapter(ctx context.Context, cfg Config) (*ActionAdapter, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	l := launcher.New().
		Headless(cfg.Headless).
		Devtools(cfg.DevTools).
		NoSandbox(cfg.NoSandbox)

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().
		ControlURL(url).
		SlowMotion(cfg.SlowMotion)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	return &ActionAdapter{
		browser:  browser,
		launcher: l,
		page:     page,
		timeout:  cfg.Timeout,
	}, nil
}

// Execute dispatches on the closed action-kind set. An unhandled kind is
// a hard error, never a silent no-op.
func (a *ActionAdapter) Execute(ctx context.Context, action *entity.Action) (*output.ActionReport, error) {
	if a.closed {
		return nil, fmt.Errorf("browser is closed")
	}
	if missing := missingParams(action); len(missing) > 0 {
		return &output.ActionReport{
			Success: false,
			Error:   fmt.Sprintf("action %s missing parameters: %s", action.Kind, strings.Join(missing, ", ")),
		}, nil
	}

	page := a.page.Context(ctx)

	switch action.Kind {
	case entity.ActionClick:
		return a.click(page, action)
	case entity.ActionType:
		return a.typeText(page, action)
	case entity.ActionScroll:
		return a.scroll(page, action)
	case entity.ActionWait:
		return a.wait(ctx, action)
	case entity.ActionNavigate:
		return a.navigate(page, action)
	case entity.ActionExtractInfo:
		return a.extract(page, "text")
	case entity.ActionSummarize:
		return a.extract(page, "content")
	case entity.ActionAnswerQuestion:
		return a.answerQuestion(page, action)
	default:
		return nil, fmt.Errorf("unhandled action kind: %s", action.Kind)
	}
}

func (a *ActionAdapter) Snapshot(ctx context.Context) (*entity.Snapshot, error) {
	if a.closed {
		return nil, fmt.Errorf("browser is closed")
	}
	page := a.page.Context(ctx)

	imgBytes, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: gson.Int(80),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(imgBytes))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}

	if img.Bounds().Dx() > 1024 {
		img = imaging.Resize(img, 1024, 0, imaging.Lanczos)
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return nil, fmt.Errorf("jpeg encode failed: %w", err)
	}

	return &entity.Snapshot{
		Ref:     uuid.NewString(),
		Data:    buf.Bytes(),
		Format:  "jpeg",
		PageURL: a.CurrentURL(),
		TakenAt: time.Now(),
	}, nil
}

func (a *ActionAdapter) CurrentURL() string {
	info, err := a.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func (a *ActionAdapter) Close() {
	a.closed = true
	if a.browser != nil {
		_ = a.browser.Close()
	}
	if a.launcher != nil {
		a.launcher.Kill()
		a.launcher.Cleanup()
	}
}

func (a *ActionAdapter) click(page *rod.Page, action *entity.Action) (*output.ActionReport, error) {
	el, err := a.element(page, action.Target)
	if err != nil {
		return failure("element not found: %s: %v", action.Target, err), nil
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return failure("click failed: %v", err), nil
	}
	page.WaitIdle(2 * time.Second)
	return success(map[string]any{"target": action.Target}), nil
}

func (a *ActionAdapter) typeText(page *rod.Page, action *entity.Action) (*output.ActionReport, error) {
	text, _ := action.Parameters["text"].(string)

	el, err := a.element(page, action.Target)
	if err != nil {
		return failure("field not found: %s: %v", action.Target, err), nil
	}
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	if err := el.Input(text); err != nil {
		return failure("input failed: %v", err), nil
	}
	return success(map[string]any{"target": action.Target, "typed": len(text)}), nil
}

func (a *ActionAdapter) scroll(page *rod.Page, action *entity.Action) (*output.ActionReport, error) {
	direction, _ := action.Parameters["direction"].(string)
	direction = strings.ToLower(strings.TrimSpace(direction))

	var js string
	switch direction {
	case "down":
		js = `() => window.scrollBy(0, window.innerHeight * 2)`
	case "up":
		js = `() => window.scrollBy(0, -window.innerHeight * 2)`
	case "top":
		js = `() => window.scrollTo(0, 0)`
	case "bottom":
		js = `() => window.scrollTo(0, document.body.scrollHeight)`
	default:
		return failure("unknown scroll direction: %s", direction), nil
	}

	if _, err := page.Eval(js); err != nil {
		return failure("scroll failed: %v", err), nil
	}
	page.WaitIdle(800 * time.Millisecond)

	pos, err := page.Eval(`() => window.scrollY`)
	scrollY := 0
	if err == nil {
		scrollY = pos.Value.Int()
	}
	return success(map[string]any{"direction": direction, "scroll_y": scrollY}), nil
}

func (a *ActionAdapter) wait(ctx context.Context, action *entity.Action) (*output.ActionReport, error) {
	ms, ok := numberParam(action.Parameters["duration_ms"])
	if !ok || ms < 0 {
		return failure("invalid duration_ms: %v", action.Parameters["duration_ms"]), nil
	}
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return success(map[string]any{"waited_ms": ms}), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *ActionAdapter) navigate(page *rod.Page, action *entity.Action) (*output.ActionReport, error) {
	url, _ := action.Parameters["url"].(string)

	if err := page.Navigate(url); err != nil {
		return failure("navigation failed: %v", err), nil
	}
	if err := page.WaitLoad(); err != nil {
		return failure("page did not finish loading: %v", err), nil
	}
	page.WaitIdle(5 * time.Second)

	info, err := page.Info()
	if err != nil {
		return nil, fmt.Errorf("page info unavailable: %w", err)
	}
	return success(map[string]any{"url": info.URL, "title": info.Title}), nil
}

func (a *ActionAdapter) extract(page *rod.Page, payloadKey string) (*output.ActionReport, error) {
	rawHTML, err := page.Timeout(a.timeout).HTML()
	if err != nil {
		return failure("failed to read page HTML: %v", err), nil
	}

	payload := map[string]any{payloadKey: pagetext.ExtractText(rawHTML, nil)}
	if title := pagetext.Title(rawHTML); title != "" {
		payload["title"] = title
	}
	if url := a.CurrentURL(); url != "" {
		payload["url"] = url
	}
	return success(payload), nil
}

// answerQuestion returns the question alongside the extracted page text;
// composing the actual answer is the planner LLM's job downstream.
func (a *ActionAdapter) answerQuestion(page *rod.Page, action *entity.Action) (*output.ActionReport, error) {
	report, err := a.extract(page, "content")
	if err != nil || !report.Success {
		return report, err
	}
	report.Payload["question"] = action.Parameters["question"]
	return report, nil
}

func (a *ActionAdapter) element(page *rod.Page, selector string) (*rod.Element, error) {
	if selector == "" {
		return nil, fmt.Errorf("empty target selector")
	}
	if strings.HasPrefix(selector, "/") || strings.Contains(selector, "xpath") {
		return page.Timeout(a.timeout).ElementX(selector)
	}
	return page.Timeout(a.timeout).Element(selector)
}

func missingParams(action *entity.Action) []string {
	var missing []string
	for _, key := range action.Kind.RequiredParams() {
		if _, ok := action.Parameters[key]; !ok {
			missing = append(missing, key)
		}
	}
	switch action.Kind {
	case entity.ActionClick, entity.ActionType:
		if action.Target == "" {
			missing = append(missing, "target")
		}
	}
	return missing
}

// numberParam accepts both float64 (JSON) and int (in-process callers).
func numberParam(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	}
	return 0, false
}

func success(payload map[string]any) *output.ActionReport {
	return &output.ActionReport{Success: true, Payload: payload}
}

func failure(format string, args ...any) *output.ActionReport {
	return &output.ActionReport{Success: false, Error: fmt.Sprintf(format, args...)}
}
