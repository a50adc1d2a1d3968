package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/mfreeman451/lineradar/pkg/config"
	"go.uber.org/zap"
)

// WebhookSender posts requests to an HTTP endpoint, either as plain JSON or
// rendered through a JSON template. Repeats of the same escalation step and
// channel inside the cooldown are suppressed.
type WebhookSender struct {
	config     config.WebhookConfig
	client     *http.Client
	tmpl       *template.Template
	logger     *zap.Logger
	now        func() time.Time
	lastSent   map[string]time.Time
	mu         sync.Mutex
	bufferPool *sync.Pool
}

func NewWebhookSender(cfg config.WebhookConfig, logger *zap.Logger) (*WebhookSender, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &WebhookSender{
		config: cfg,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:   logger,
		now:      time.Now,
		lastSent: make(map[string]time.Time),
		bufferPool: &sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}

	switch cfg.Preset {
	case "":
	case PresetDiscord:
		if cfg.Template == "" {
			cfg.Template = DiscordTemplate
		}
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownPreset, cfg.Preset)
	}

	w.config = cfg

	if cfg.Template != "" {
		tmpl, err := template.New("webhook").Funcs(w.templateFuncs()).Parse(cfg.Template)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errTemplateParse, err)
		}

		w.tmpl = tmpl
	}

	return w, nil
}

func (w *WebhookSender) Name() string {
	return "webhook"
}

func (w *WebhookSender) templateFuncs() template.FuncMap {
	return template.FuncMap{
		"json": func(v interface{}) (string, error) {
			buf := w.bufferPool.Get().(*bytes.Buffer)
			buf.Reset()
			defer w.bufferPool.Put(buf)

			if err := json.NewEncoder(buf).Encode(v); err != nil {
				return "", fmt.Errorf("JSON marshaling failed: %w", err)
			}

			return strings.TrimSpace(buf.String()), nil
		},
		"join": strings.Join,
	}
}

func (w *WebhookSender) Send(ctx context.Context, req *Request) error {
	if err := w.checkCooldown(req.Key()); err != nil {
		w.logger.Debug("webhook cooldown", zap.String("key", req.Key()))
		return err
	}

	payload, err := w.preparePayload(req)
	if err != nil {
		return fmt.Errorf("failed to prepare payload: %w", err)
	}

	return w.sendRequest(ctx, payload)
}

func (w *WebhookSender) checkCooldown(key string) error {
	if w.config.Cooldown <= 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()

	last, exists := w.lastSent[key]
	if exists && now.Sub(last) < time.Duration(w.config.Cooldown) {
		return errWebhookCooldown
	}

	w.lastSent[key] = now

	return nil
}

func (w *WebhookSender) preparePayload(req *Request) ([]byte, error) {
	buf := w.bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer w.bufferPool.Put(buf)

	if w.tmpl == nil {
		if err := json.NewEncoder(buf).Encode(req); err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		return append([]byte(nil), buf.Bytes()...), nil
	}

	if err := w.tmpl.Execute(buf, map[string]interface{}{"request": req}); err != nil {
		return nil, fmt.Errorf("%w: %w", errTemplateExecution, err)
	}

	if !json.Valid(buf.Bytes()) {
		return nil, errInvalidJSON
	}

	return append([]byte(nil), buf.Bytes()...), nil
}

func (w *WebhookSender) sendRequest(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	w.setHeaders(req)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}

	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			w.logger.Debug("failed to close response body", zap.Error(err))
		}
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBuf := w.bufferPool.Get().(*bytes.Buffer)
		errBuf.Reset()
		defer w.bufferPool.Put(errBuf)

		_, _ = io.Copy(errBuf, io.LimitReader(resp.Body, 4096))

		return fmt.Errorf("%w: status=%d body=%s", errWebhookStatus, resp.StatusCode, errBuf.String())
	}

	return nil
}

func (w *WebhookSender) setHeaders(req *http.Request) {
	hasContentType := false

	for _, header := range w.config.Headers {
		if strings.EqualFold(header.Key, "content-type") {
			hasContentType = true
		}

		req.Header.Set(header.Key, header.Value)
	}

	if !hasContentType {
		req.Header.Set("Content-Type", "application/json")
	}
}
