package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"deskpilot/internal/logging"
)

// ClaudeCLIConfig configures the Claude CLI subprocess backend.
type ClaudeCLIConfig struct {
	Binary  string
	Model   string
	Timeout time.Duration
}

// ClaudeCLIClient implements Backend by executing
// `claude -p --output-format json --model <model>` and parsing the JSON
// output. Image attachments are written to temp files and referenced from
// the prompt; the CLI reads files it is pointed at.
type ClaudeCLIClient struct {
	binary  string
	model   string
	timeout time.Duration
}

// NewClaudeCLIClient creates the subprocess backend with defaults applied.
func NewClaudeCLIClient(cfg ClaudeCLIConfig) *ClaudeCLIClient {
	binary := cfg.Binary
	if binary == "" {
		binary = "claude"
	}
	model := cfg.Model
	if model == "" {
		model = "sonnet"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &ClaudeCLIClient{binary: binary, model: model, timeout: timeout}
}

func (c *ClaudeCLIClient) Name() string         { return "claude-cli" }
func (c *ClaudeCLIClient) SupportsVision() bool { return true }

// claudeCLIResponse is the JSON shape of `claude --output-format json`.
type claudeCLIResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	IsRateLimited bool `json:"is_rate_limited,omitempty"`
}

// Converse runs one CLI invocation.
func (c *ClaudeCLIClient) Converse(ctx context.Context, req ConverseRequest) (string, error) {
	ctx, cancel := callContext(ctx, req, c.timeout)
	defer cancel()
	started := time.Now()

	prompt := req.Prompt
	if req.System != "" {
		prompt = fmt.Sprintf("[System Instructions]\n%s\n\n[User Request]\n%s", req.System, req.Prompt)
	}

	var imageDir string
	if len(req.Images) > 0 {
		dir, paths, err := writeAttachments(req.Images)
		if err != nil {
			return "", err
		}
		imageDir = dir
		prompt = fmt.Sprintf("%s\n\nAttached screenshots (read these files):\n%s",
			prompt, strings.Join(paths, "\n"))
	}
	if imageDir != "" {
		defer os.RemoveAll(imageDir)
	}

	args := []string{
		"-p", prompt,
		"--output-format", "json",
		"--model", c.model,
	}
	cmd := exec.CommandContext(ctx, c.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.Get(logging.CategoryBackend).Debugw("claude cli call",
		"model", c.model, "images", len(req.Images), "prompt_bytes", len(prompt))

	if err := cmd.Run(); err != nil {
		if ctxErr := classifyCtxErr(ctx, c.Name(), started); ctxErr != nil {
			return "", ctxErr
		}
		errOut := strings.TrimSpace(stderr.String())
		if isRateLimitOutput(errOut) {
			return "", &RateLimitError{Provider: c.Name()}
		}
		return "", fmt.Errorf("claude CLI execution failed: %w (stderr: %s)", err, errOut)
	}

	return c.parseResponse(stdout.Bytes())
}

func (c *ClaudeCLIClient) parseResponse(out []byte) (string, error) {
	var resp claudeCLIResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		// Older CLI builds emit plain text; pass it through.
		text := strings.TrimSpace(string(out))
		if text == "" {
			return "", fmt.Errorf("claude CLI returned empty output")
		}
		return text, nil
	}
	if resp.IsRateLimited {
		return "", &RateLimitError{Provider: c.Name()}
	}
	if resp.Error != nil {
		return "", fmt.Errorf("claude CLI error: %s", resp.Error.Message)
	}
	if strings.TrimSpace(resp.Result) == "" {
		return "", fmt.Errorf("claude CLI returned empty result")
	}
	return strings.TrimSpace(resp.Result), nil
}

func isRateLimitOutput(s string) bool {
	l := strings.ToLower(s)
	return strings.Contains(l, "rate limit") || strings.Contains(l, "429") ||
		strings.Contains(l, "too many requests")
}

func writeAttachments(images []Attachment) (dir string, paths []string, err error) {
	dir, err = os.MkdirTemp("", "deskpilot-frames-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create attachment dir: %w", err)
	}
	for i, img := range images {
		ext := ".png"
		if strings.Contains(img.MIME, "jpeg") {
			ext = ".jpg"
		}
		path := filepath.Join(dir, fmt.Sprintf("frame-%02d%s", i, ext))
		if err := os.WriteFile(path, img.Data, 0o600); err != nil {
			os.RemoveAll(dir)
			return "", nil, fmt.Errorf("failed to write attachment: %w", err)
		}
		paths = append(paths, path)
	}
	return dir, paths, nil
}
